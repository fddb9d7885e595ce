// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomgraph

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/homeserver/federation"
	"github.com/bureau-foundation/homeserver/lib/ref"
)

// Exists reports whether the room is registered on this server.
func (s *Store) Exists(ctx context.Context, room ref.RoomID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	exists := false
	err = sqlitex.Execute(conn, "SELECT 1 FROM rooms WHERE room_id = ?", &sqlitex.ExecOptions{
		Args: []any{room.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("roomgraph: room lookup: %w", err)
	}
	return exists, nil
}

// RoomVersion returns the room's version string.
func (s *Store) RoomVersion(ctx context.Context, room ref.RoomID) (federation.RoomVersion, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	var raw string
	err = sqlitex.Execute(conn, "SELECT version FROM rooms WHERE room_id = ?", &sqlitex.ExecOptions{
		Args: []any{room.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			raw = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("roomgraph: room version lookup: %w", err)
	}
	if raw == "" {
		return "", federation.ErrNotFound
	}
	return federation.ParseRoomVersion(raw)
}

// IsWorldReadable reports whether the room's current history
// visibility is "world_readable".
func (s *Store) IsWorldReadable(ctx context.Context, room ref.RoomID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	visibility, err := currentStateContent(conn, room, federation.EventTypeHistoryVisibility, "history_visibility")
	if err != nil {
		return false, err
	}
	return visibility == federation.HistoryVisibilityWorldReadable, nil
}

// ServerCanSeeEvent reports whether origin may see the event under the
// history-visibility policy recorded in the event's own state snapshot.
// Visibility is judged against the state as of the event, not the
// room's current state, so tightening visibility later does not hide
// already-shared history.
func (s *Store) ServerCanSeeEvent(ctx context.Context, origin ref.ServerName, room ref.RoomID, event ref.EventID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	var visibility string
	err = sqlitex.Execute(conn, `SELECT e.json FROM events e
		JOIN state_sets s ON s.event_id = e.event_id
		WHERE s.short_state_hash = (SELECT short_state_hash FROM events WHERE event_id = ?)
		AND e.type = ? AND e.state_key = ''`, &sqlitex.ExecOptions{
		Args: []any{event.String(), federation.EventTypeHistoryVisibility},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			visibility = gjson.Get(stmt.ColumnText(0), "content.history_visibility").String()
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("roomgraph: event visibility lookup: %w", err)
	}

	switch visibility {
	case federation.HistoryVisibilityWorldReadable:
		return true, nil
	case federation.HistoryVisibilityInvited, federation.HistoryVisibilityJoined:
		return s.serverMembershipIn(conn, origin, room, []string{federation.MembershipJoin})
	default:
		// "shared" and unset both mean visible to any room member.
		return s.serverMembershipIn(conn, origin, room, []string{federation.MembershipJoin, federation.MembershipInvite, federation.MembershipKnock})
	}
}

// Member returns the user's current membership in the room, or
// federation.ErrNotFound when the user has no membership state.
func (s *Store) Member(ctx context.Context, room ref.RoomID, user ref.UserID) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	var membership string
	err = sqlitex.Execute(conn, "SELECT membership FROM memberships WHERE room_id = ? AND user_id = ?", &sqlitex.ExecOptions{
		Args: []any{room.String(), user.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			membership = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("roomgraph: membership lookup: %w", err)
	}
	if membership == "" {
		return "", federation.ErrNotFound
	}
	return membership, nil
}

// PDUShortStateHash resolves an event to its state snapshot's surrogate
// key, or federation.ErrNotFound when the event is unknown or carries
// no snapshot.
func (s *Store) PDUShortStateHash(ctx context.Context, event ref.EventID) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	var hash int64
	found := false
	err = sqlitex.Execute(conn, "SELECT short_state_hash FROM events WHERE event_id = ? AND short_state_hash IS NOT NULL", &sqlitex.ExecOptions{
		Args: []any{event.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			hash = stmt.ColumnInt64(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("roomgraph: state snapshot lookup: %w", err)
	}
	if !found {
		return 0, federation.ErrNotFound
	}
	return hash, nil
}

// StateFullIDs enumerates every state event id in the snapshot.
func (s *Store) StateFullIDs(ctx context.Context, shortStateHash int64) ([]ref.EventID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var ids []ref.EventID
	err = sqlitex.Execute(conn, "SELECT event_id FROM state_sets WHERE short_state_hash = ? ORDER BY event_id", &sqlitex.ExecOptions{
		Args: []any{shortStateHash},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id, err := ref.ParseEventID(stmt.ColumnText(0))
			if err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("roomgraph: enumerating snapshot %d: %w", shortStateHash, err)
	}
	return ids, nil
}

// ServerInRoom reports whether any user on the given server currently
// participates in the room (joined, invited, or knocking).
func (s *Store) ServerInRoom(ctx context.Context, server ref.ServerName, room ref.RoomID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	return s.serverMembershipIn(conn, server, room, []string{federation.MembershipJoin, federation.MembershipInvite, federation.MembershipKnock})
}

// RoomMembersKnocked counts local users knocking on the room.
func (s *Store) RoomMembersKnocked(ctx context.Context, room ref.RoomID) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM memberships WHERE room_id = ? AND server_name = ? AND membership = ?", &sqlitex.ExecOptions{
		Args: []any{room.String(), s.serverName.Host(), federation.MembershipKnock},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("roomgraph: counting knocking members: %w", err)
	}
	return count, nil
}

func (s *Store) serverMembershipIn(conn *sqlite.Conn, server ref.ServerName, room ref.RoomID, memberships []string) (bool, error) {
	found := false
	for _, membership := range memberships {
		err := sqlitex.Execute(conn, "SELECT 1 FROM memberships WHERE room_id = ? AND server_name = ? AND membership = ? LIMIT 1", &sqlitex.ExecOptions{
			Args: []any{room.String(), server.Host(), membership},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				return nil
			},
		})
		if err != nil {
			return false, fmt.Errorf("roomgraph: server membership lookup: %w", err)
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// currentStateContent reads one field from a room's current state event
// of the given type (empty state key).
func currentStateContent(conn *sqlite.Conn, room ref.RoomID, eventType, field string) (string, error) {
	var value string
	err := sqlitex.Execute(conn, `SELECT e.json FROM current_state c
		JOIN events e ON e.event_id = c.event_id
		WHERE c.room_id = ? AND c.type = ? AND c.state_key = ''`, &sqlitex.ExecOptions{
		Args: []any{room.String(), eventType},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = gjson.Get(stmt.ColumnText(0), "content."+field).String()
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("roomgraph: current state lookup: %w", err)
	}
	return value, nil
}
