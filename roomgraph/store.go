// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomgraph

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/homeserver/federation"
	"github.com/bureau-foundation/homeserver/lib/ref"
	"github.com/bureau-foundation/homeserver/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id TEXT PRIMARY KEY,
	version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	event_id         TEXT PRIMARY KEY,
	room_id          TEXT NOT NULL,
	type             TEXT NOT NULL,
	state_key        TEXT,
	sender           TEXT NOT NULL,
	json             TEXT NOT NULL,
	short_state_hash INTEGER
);
CREATE INDEX IF NOT EXISTS idx_events_room ON events(room_id);

CREATE TABLE IF NOT EXISTS auth_edges (
	event_id      TEXT NOT NULL,
	auth_event_id TEXT NOT NULL,
	PRIMARY KEY (event_id, auth_event_id)
);

CREATE TABLE IF NOT EXISTS state_snapshots (
	short_state_hash INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS state_sets (
	short_state_hash INTEGER NOT NULL,
	event_id         TEXT NOT NULL,
	PRIMARY KEY (short_state_hash, event_id)
);

CREATE TABLE IF NOT EXISTS current_state (
	room_id   TEXT NOT NULL,
	type      TEXT NOT NULL,
	state_key TEXT NOT NULL,
	event_id  TEXT NOT NULL,
	PRIMARY KEY (room_id, type, state_key)
);

CREATE TABLE IF NOT EXISTS memberships (
	room_id     TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	server_name TEXT NOT NULL,
	membership  TEXT NOT NULL,
	PRIMARY KEY (room_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_memberships_server ON memberships(room_id, server_name, membership);
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Pool is the SQLite connection pool. Required; the Store applies
	// its schema on open but does not own the pool.
	Pool *sqlitepool.Pool

	// ServerName is the local homeserver's name, used for signing and
	// for the local-user membership queries.
	ServerName ref.ServerName

	// SigningKey is the server's ed25519 key for event signatures.
	SigningKey ed25519.PrivateKey

	// KeyID is the signature key identifier (e.g. "ed25519:a1b2").
	// Defaults to "ed25519:auto".
	KeyID string

	// Locks is the process-wide per-room mutation lock table, shared
	// with every other room-mutating call site.
	Locks *federation.RoomLocks

	// Logger receives operational messages. If nil, logging is
	// discarded.
	Logger *slog.Logger
}

// Store is the SQLite-backed room event graph. It implements the
// federation collaborator interfaces. Safe for concurrent use.
type Store struct {
	pool       *sqlitepool.Pool
	serverName ref.ServerName
	signingKey ed25519.PrivateKey
	keyID      string
	locks      *federation.RoomLocks
	logger     *slog.Logger
}

// Open validates the configuration, applies the schema, and returns a
// Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("roomgraph: Pool is required")
	}
	if cfg.ServerName.IsZero() {
		return nil, fmt.Errorf("roomgraph: ServerName is required")
	}
	if len(cfg.SigningKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("roomgraph: SigningKey must be a %d-byte ed25519 private key", ed25519.PrivateKeySize)
	}
	if cfg.Locks == nil {
		return nil, fmt.Errorf("roomgraph: Locks is required")
	}

	keyID := cfg.KeyID
	if keyID == "" {
		keyID = "ed25519:auto"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store := &Store{
		pool:       cfg.Pool,
		serverName: cfg.ServerName,
		signingKey: cfg.SigningKey,
		keyID:      keyID,
		locks:      cfg.Locks,
		logger:     logger,
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer store.pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, fmt.Errorf("roomgraph: applying schema: %w", err)
	}
	return store, nil
}

// CreateRoom registers a room and appends its m.room.create event.
// The creator is recorded as a joined member so the room has a usable
// starting state.
func (s *Store) CreateRoom(ctx context.Context, room ref.RoomID, version federation.RoomVersion, creator ref.UserID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	err = sqlitex.Execute(conn, "INSERT INTO rooms (room_id, version) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{room.String(), version.String()},
	})
	s.pool.Put(conn)
	if err != nil {
		return fmt.Errorf("roomgraph: registering room %s: %w", room, err)
	}

	emptyStateKey := ""
	_, err = s.SetState(ctx, room, creator, federation.PDUBuilder{
		Type:     federation.EventTypeCreate,
		StateKey: &emptyStateKey,
		Content: map[string]any{
			"creator":      creator.String(),
			"room_version": version.String(),
		},
	})
	if err != nil {
		return err
	}

	_, err = s.SetState(ctx, room, creator, federation.MemberBuilder(creator, federation.MembershipJoin))
	return err
}

// SetState appends a state event on behalf of a local caller (room
// seeding, admin tooling, tests). It acquires the room's mutation
// lock itself; federation callers go through CreateHashAndSignEvent
// with a guard they already hold.
func (s *Store) SetState(ctx context.Context, room ref.RoomID, sender ref.UserID, builder federation.PDUBuilder) (ref.EventID, error) {
	guard, err := s.locks.Acquire(ctx, room)
	if err != nil {
		return ref.EventID{}, err
	}
	defer guard.Release()

	eventID, _, err := s.createLocked(ctx, builder, sender, room)
	return eventID, err
}
