// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/homeserver/lib/ref"
)

// ACL evaluates a room's server access-control-list policy.
type ACL interface {
	// ACLCheck reports whether the room's ACL currently permits the
	// origin server. The error is for store failures only — a policy
	// denial is allowed=false, nil.
	ACLCheck(ctx context.Context, origin ref.ServerName, room ref.RoomID) (allowed bool, err error)
}

// RoomMetadata answers existence and version questions about rooms.
type RoomMetadata interface {
	Exists(ctx context.Context, room ref.RoomID) (bool, error)
	RoomVersion(ctx context.Context, room ref.RoomID) (RoomVersion, error)
}

// StateAccessor reads a room's resolved state index.
type StateAccessor interface {
	// IsWorldReadable reports whether the room's current history
	// visibility is "world_readable".
	IsWorldReadable(ctx context.Context, room ref.RoomID) (bool, error)

	// ServerCanSeeEvent reports whether the origin server may see the
	// given event under the room's history-visibility policy and the
	// server's historical membership.
	ServerCanSeeEvent(ctx context.Context, origin ref.ServerName, room ref.RoomID, event ref.EventID) (bool, error)

	// Member returns the user's current membership in the room, or
	// ErrNotFound when the user has no membership state.
	Member(ctx context.Context, room ref.RoomID, user ref.UserID) (string, error)

	// PDUShortStateHash resolves an event to the surrogate key of the
	// full room state as of that event, or ErrNotFound when no state
	// snapshot is recorded for it.
	PDUShortStateHash(ctx context.Context, event ref.EventID) (int64, error)

	// StateFullIDs enumerates every state event id in the snapshot
	// identified by shortStateHash — one per distinct (type, state
	// key) pair.
	StateFullIDs(ctx context.Context, shortStateHash int64) ([]ref.EventID, error)
}

// StateCache answers membership questions about servers and local users.
type StateCache interface {
	// ServerInRoom reports whether any user on the given server has a
	// non-left, non-banned membership in the room.
	ServerInRoom(ctx context.Context, server ref.ServerName, room ref.RoomID) (bool, error)

	// RoomMembersKnocked counts local users whose membership in the
	// room is "knock".
	RoomMembersKnocked(ctx context.Context, room ref.RoomID) (int, error)
}

// Timeline reads stored PDUs and appends new ones.
type Timeline interface {
	// PDUJSON returns the stored JSON document for an event, or
	// ErrNotFound.
	PDUJSON(ctx context.Context, event ref.EventID) (json.RawMessage, error)

	// CreateHashAndSignEvent builds the event described by builder,
	// computes its hashes and id, signs it, durably appends it, and
	// returns the persisted document. The guard proves the caller
	// holds the room's mutation lock; implementations must reject a
	// guard for a different room.
	CreateHashAndSignEvent(ctx context.Context, builder PDUBuilder, sender ref.UserID, room ref.RoomID, guard *RoomGuard) (ref.EventID, json.RawMessage, error)
}

// AuthChain computes transitive closures over auth_events edges.
type AuthChain interface {
	// AuthChainIDs returns the deduplicated closure of events
	// reachable from roots via auth_events edges. Membership of the
	// result is a set; callers must not depend on its order.
	AuthChainIDs(ctx context.Context, room ref.RoomID, roots []ref.EventID) ([]ref.EventID, error)
}

// ForbiddenServers is the operator's global forbidden-remote-server
// policy, matched against server hosts.
type ForbiddenServers interface {
	ForbiddenHost(host string) bool
}

// Service implements the federation access-control and room-state
// synchronization protocols on top of the collaborator contracts.
// Safe for concurrent use.
type Service struct {
	acl       ACL
	metadata  RoomMetadata
	accessor  StateAccessor
	cache     StateCache
	timeline  Timeline
	authChain AuthChain
	forbidden ForbiddenServers
	locks     *RoomLocks
	logger    *slog.Logger
}

// ServiceConfig carries the collaborators for NewService. All fields
// except Logger are required.
type ServiceConfig struct {
	ACL       ACL
	Metadata  RoomMetadata
	Accessor  StateAccessor
	Cache     StateCache
	Timeline  Timeline
	AuthChain AuthChain
	Forbidden ForbiddenServers

	// Locks is the process-wide per-room mutation lock table. It must
	// be the same instance every room-mutating call site uses.
	Locks *RoomLocks

	// Logger receives rejection diagnostics. If nil, logging is
	// discarded.
	Logger *slog.Logger
}

// NewService validates the collaborator set and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	required := []struct {
		name  string
		absent bool
	}{
		{"ACL", cfg.ACL == nil},
		{"Metadata", cfg.Metadata == nil},
		{"Accessor", cfg.Accessor == nil},
		{"Cache", cfg.Cache == nil},
		{"Timeline", cfg.Timeline == nil},
		{"AuthChain", cfg.AuthChain == nil},
		{"Forbidden", cfg.Forbidden == nil},
		{"Locks", cfg.Locks == nil},
	}
	for _, field := range required {
		if field.absent {
			return nil, fmt.Errorf("federation: ServiceConfig.%s is required", field.name)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Service{
		acl:       cfg.ACL,
		metadata:  cfg.Metadata,
		accessor:  cfg.Accessor,
		cache:     cfg.Cache,
		timeline:  cfg.Timeline,
		authChain: cfg.AuthChain,
		forbidden: cfg.Forbidden,
		locks:     cfg.Locks,
		logger:    logger,
	}, nil
}
