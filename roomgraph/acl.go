// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomgraph

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/tidwall/gjson"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/homeserver/federation"
	"github.com/bureau-foundation/homeserver/lib/ref"
	"github.com/bureau-foundation/homeserver/lib/serverglob"
)

// ACLCheck evaluates the room's m.room.server_acl state against the
// origin server's host. A room without an ACL event permits everyone.
// With an ACL: a deny match rejects; a non-empty allow list rejects
// hosts that match none of its patterns; IP-literal hosts are rejected
// unless allow_ip_literals is explicitly true.
func (s *Store) ACLCheck(ctx context.Context, origin ref.ServerName, room ref.RoomID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	var acl string
	found := false
	err = sqlitex.Execute(conn, `SELECT e.json FROM current_state c
		JOIN events e ON e.event_id = c.event_id
		WHERE c.room_id = ? AND c.type = ? AND c.state_key = ''`, &sqlitex.ExecOptions{
		Args: []any{room.String(), federation.EventTypeServerACL},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			acl = gjson.Get(stmt.ColumnText(0), "content").Raw
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("roomgraph: server ACL lookup: %w", err)
	}
	if !found {
		return true, nil
	}

	host := origin.Host()

	// IPv6 literal hosts keep their brackets; strip them for the
	// literal check only.
	if net.ParseIP(strings.Trim(host, "[]")) != nil && !gjson.Get(acl, "allow_ip_literals").Bool() {
		return false, nil
	}

	for _, pattern := range gjson.Get(acl, "deny").Array() {
		if serverglob.Match(pattern.String(), host) {
			return false, nil
		}
	}

	allow := gjson.Get(acl, "allow").Array()
	if len(allow) == 0 {
		// An ACL with no allow list admits nobody.
		return false, nil
	}
	for _, pattern := range allow {
		if serverglob.Match(pattern.String(), host) {
			return true, nil
		}
	}
	return false, nil
}
