// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomgraph

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/homeserver/lib/ref"
)

// AuthChainIDs computes the transitive closure of events reachable from
// roots via auth_events edges. Breadth-first over the auth_edges table
// with a visited set; the roots themselves are excluded unless another
// event's auth edges reach back to them.
func (s *Store) AuthChainIDs(ctx context.Context, room ref.RoomID, roots []ref.EventID) ([]ref.EventID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	frontier := make([]string, 0, len(roots))
	for _, root := range roots {
		frontier = append(frontier, root.String())
	}

	visited := make(map[string]bool)
	var chain []ref.EventID
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]

		var parents []string
		err := sqlitex.Execute(conn, "SELECT auth_event_id FROM auth_edges WHERE event_id = ?", &sqlitex.ExecOptions{
			Args: []any{next},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				parents = append(parents, stmt.ColumnText(0))
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("roomgraph: walking auth edges of %s: %w", next, err)
		}
		for _, parent := range parents {
			if visited[parent] {
				continue
			}
			visited[parent] = true
			id, err := ref.ParseEventID(parent)
			if err != nil {
				return nil, fmt.Errorf("roomgraph: auth edge of %s: %w", next, err)
			}
			chain = append(chain, id)
			frontier = append(frontier, parent)
		}
	}
	return chain, nil
}
