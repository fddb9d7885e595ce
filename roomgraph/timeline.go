// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomgraph

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/homeserver/federation"
	"github.com/bureau-foundation/homeserver/lib/ref"
)

// PDUJSON returns the stored JSON document for an event.
func (s *Store) PDUJSON(ctx context.Context, event ref.EventID) (json.RawMessage, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var doc json.RawMessage
	err = sqlitex.Execute(conn, "SELECT json FROM events WHERE event_id = ?", &sqlitex.ExecOptions{
		Args: []any{event.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			doc = json.RawMessage(stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("roomgraph: fetching event %s: %w", event, err)
	}
	if doc == nil {
		return nil, federation.ErrNotFound
	}
	return doc, nil
}

// CreateHashAndSignEvent builds, hashes, signs, and durably appends the
// event described by builder. The guard proves the caller holds the
// room's mutation lock; a nil guard or one for a different room is a
// programming error and is rejected.
func (s *Store) CreateHashAndSignEvent(ctx context.Context, builder federation.PDUBuilder, sender ref.UserID, room ref.RoomID, guard *federation.RoomGuard) (ref.EventID, json.RawMessage, error) {
	if guard == nil || guard.Room() != room {
		return ref.EventID{}, nil, fmt.Errorf("roomgraph: event append for %s without holding its room lock", room)
	}
	return s.createLocked(ctx, builder, sender, room)
}

// createLocked performs the actual event construction and append. The
// caller must hold the room's mutation lock.
func (s *Store) createLocked(ctx context.Context, builder federation.PDUBuilder, sender ref.UserID, room ref.RoomID) (eventID ref.EventID, doc json.RawMessage, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return ref.EventID{}, nil, err
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	var version string
	err = sqlitex.Execute(conn, "SELECT version FROM rooms WHERE room_id = ?", &sqlitex.ExecOptions{
		Args: []any{room.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return ref.EventID{}, nil, fmt.Errorf("roomgraph: reading room version: %w", err)
	}
	if version == "" {
		return ref.EventID{}, nil, fmt.Errorf("roomgraph: room %s is not registered", room)
	}

	prevEvents, depth, err := timelineHead(conn, room)
	if err != nil {
		return ref.EventID{}, nil, err
	}
	authEvents, err := s.authSelection(conn, builder, sender, room)
	if err != nil {
		return ref.EventID{}, nil, err
	}

	content, err := json.Marshal(builder.Content)
	if err != nil {
		return ref.EventID{}, nil, fmt.Errorf("roomgraph: marshalling event content: %w", err)
	}

	event := map[string]any{
		"auth_events":      authEvents,
		"content":          json.RawMessage(content),
		"depth":            depth,
		"origin_server_ts": time.Now().UnixMilli(),
		"prev_events":      prevEvents,
		"room_id":          room.String(),
		"sender":           sender.String(),
		"type":             builder.Type,
	}
	if builder.StateKey != nil {
		event["state_key"] = *builder.StateKey
	}

	// Content hash over the event before hashes and signatures exist.
	contentHash, err := canonicalSHA256(event)
	if err != nil {
		return ref.EventID{}, nil, err
	}
	event["hashes"] = map[string]string{
		"sha256": base64.RawStdEncoding.EncodeToString(contentHash),
	}

	// The event ID is the reference hash of the hashed-but-unsigned
	// event, URL-safe base64 with the $ sigil.
	referenceHash, err := canonicalSHA256(event)
	if err != nil {
		return ref.EventID{}, nil, err
	}
	eventID, err = ref.ParseEventID("$" + base64.RawURLEncoding.EncodeToString(referenceHash))
	if err != nil {
		return ref.EventID{}, nil, fmt.Errorf("roomgraph: deriving event id: %w", err)
	}

	signable, err := canonicalJSON(event)
	if err != nil {
		return ref.EventID{}, nil, err
	}
	signature := ed25519.Sign(s.signingKey, signable)
	event["signatures"] = map[string]map[string]string{
		s.serverName.String(): {
			s.keyID: base64.RawStdEncoding.EncodeToString(signature),
		},
	}

	// The stored document always carries the event ID; the federation
	// formatter strips it for room versions whose wire format omits it.
	event["event_id"] = eventID.String()
	doc, err = json.Marshal(event)
	if err != nil {
		return ref.EventID{}, nil, fmt.Errorf("roomgraph: marshalling event: %w", err)
	}

	if err := s.appendEvent(conn, room, eventID, builder, sender, doc, authEvents); err != nil {
		return ref.EventID{}, nil, err
	}
	s.logger.Debug("event appended",
		"room", room, "event", eventID, "type", builder.Type, "sender", sender)
	return eventID, doc, nil
}

// timelineHead returns the forward extremity and the next depth for a
// room. A room with no events yet has an empty prev_events list and
// depth 1.
func timelineHead(conn *sqlite.Conn, room ref.RoomID) ([]string, int64, error) {
	prevEvents := []string{}
	err := sqlitex.Execute(conn, "SELECT event_id FROM events WHERE room_id = ? ORDER BY rowid DESC LIMIT 1", &sqlitex.ExecOptions{
		Args: []any{room.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			prevEvents = append(prevEvents, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("roomgraph: reading timeline head: %w", err)
	}

	var depth int64
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM events WHERE room_id = ?", &sqlitex.ExecOptions{
		Args: []any{room.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			depth = stmt.ColumnInt64(0) + 1
			return nil
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("roomgraph: reading room depth: %w", err)
	}
	return prevEvents, depth, nil
}

// authSelection picks the auth events for a new event from current
// state: the create event, the power levels, and the sender's own
// membership. The create event itself authorizes nothing prior.
func (s *Store) authSelection(conn *sqlite.Conn, builder federation.PDUBuilder, sender ref.UserID, room ref.RoomID) ([]string, error) {
	if builder.Type == federation.EventTypeCreate {
		return []string{}, nil
	}

	wanted := [][2]string{
		{federation.EventTypeCreate, ""},
		{federation.EventTypePowerLevels, ""},
		{federation.EventTypeMember, sender.String()},
	}
	authEvents := []string{}
	for _, key := range wanted {
		err := sqlitex.Execute(conn, "SELECT event_id FROM current_state WHERE room_id = ? AND type = ? AND state_key = ?", &sqlitex.ExecOptions{
			Args: []any{room.String(), key[0], key[1]},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				authEvents = append(authEvents, stmt.ColumnText(0))
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("roomgraph: selecting auth events: %w", err)
		}
	}
	return authEvents, nil
}

// appendEvent inserts the event row and its auth edges, then, for state
// events, folds it into current state, records a fresh state snapshot,
// and maintains the membership index. Runs inside the caller's
// savepoint.
func (s *Store) appendEvent(conn *sqlite.Conn, room ref.RoomID, eventID ref.EventID, builder federation.PDUBuilder, sender ref.UserID, doc json.RawMessage, authEvents []string) error {
	var stateKey any
	if builder.StateKey != nil {
		stateKey = *builder.StateKey
	}
	err := sqlitex.Execute(conn, "INSERT INTO events (event_id, room_id, type, state_key, sender, json) VALUES (?, ?, ?, ?, ?, ?)", &sqlitex.ExecOptions{
		Args: []any{eventID.String(), room.String(), builder.Type, stateKey, sender.String(), string(doc)},
	})
	if err != nil {
		return fmt.Errorf("roomgraph: inserting event: %w", err)
	}
	for _, authID := range authEvents {
		err := sqlitex.Execute(conn, "INSERT INTO auth_edges (event_id, auth_event_id) VALUES (?, ?)", &sqlitex.ExecOptions{
			Args: []any{eventID.String(), authID},
		})
		if err != nil {
			return fmt.Errorf("roomgraph: inserting auth edge: %w", err)
		}
	}

	if builder.StateKey == nil {
		// Timeline events inherit the latest snapshot.
		err := sqlitex.Execute(conn, `UPDATE events SET short_state_hash =
			(SELECT MAX(short_state_hash) FROM state_snapshots WHERE room_id = ?)
			WHERE event_id = ?`, &sqlitex.ExecOptions{
			Args: []any{room.String(), eventID.String()},
		})
		if err != nil {
			return fmt.Errorf("roomgraph: linking event snapshot: %w", err)
		}
		return nil
	}

	err = sqlitex.Execute(conn, `INSERT INTO current_state (room_id, type, state_key, event_id) VALUES (?, ?, ?, ?)
		ON CONFLICT (room_id, type, state_key) DO UPDATE SET event_id = excluded.event_id`, &sqlitex.ExecOptions{
		Args: []any{room.String(), builder.Type, *builder.StateKey, eventID.String()},
	})
	if err != nil {
		return fmt.Errorf("roomgraph: updating current state: %w", err)
	}

	err = sqlitex.Execute(conn, "INSERT INTO state_snapshots (room_id) VALUES (?)", &sqlitex.ExecOptions{
		Args: []any{room.String()},
	})
	if err != nil {
		return fmt.Errorf("roomgraph: recording state snapshot: %w", err)
	}
	shortStateHash := conn.LastInsertRowID()

	err = sqlitex.Execute(conn, "INSERT INTO state_sets (short_state_hash, event_id) SELECT ?, event_id FROM current_state WHERE room_id = ?", &sqlitex.ExecOptions{
		Args: []any{shortStateHash, room.String()},
	})
	if err != nil {
		return fmt.Errorf("roomgraph: populating state snapshot: %w", err)
	}
	err = sqlitex.Execute(conn, "UPDATE events SET short_state_hash = ? WHERE event_id = ?", &sqlitex.ExecOptions{
		Args: []any{shortStateHash, eventID.String()},
	})
	if err != nil {
		return fmt.Errorf("roomgraph: linking event snapshot: %w", err)
	}

	if builder.Type == federation.EventTypeMember {
		member, err := ref.ParseUserID(*builder.StateKey)
		if err != nil {
			return fmt.Errorf("roomgraph: member event state key: %w", err)
		}
		content, ok := builder.Content.(federation.MemberContent)
		if !ok {
			var parsed federation.MemberContent
			raw, err := json.Marshal(builder.Content)
			if err != nil {
				return fmt.Errorf("roomgraph: member event content: %w", err)
			}
			if err := json.Unmarshal(raw, &parsed); err != nil {
				return fmt.Errorf("roomgraph: member event content: %w", err)
			}
			content = parsed
		}
		err = sqlitex.Execute(conn, `INSERT INTO memberships (room_id, user_id, server_name, membership) VALUES (?, ?, ?, ?)
			ON CONFLICT (room_id, user_id) DO UPDATE SET membership = excluded.membership`, &sqlitex.ExecOptions{
			Args: []any{room.String(), member.String(), member.ServerName().Host(), content.Membership},
		})
		if err != nil {
			return fmt.Errorf("roomgraph: updating membership index: %w", err)
		}
	}
	return nil
}

// canonicalJSON renders v with sorted object keys and no HTML escaping.
// encoding/json sorts map keys, so building events as maps gives the
// canonical key order for free.
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("roomgraph: canonical encoding: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func canonicalSHA256(v any) ([]byte, error) {
	canonical, err := canonicalJSON(v)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}
