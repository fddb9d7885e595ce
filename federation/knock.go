// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/homeserver/lib/ref"
)

// KnockRequest is a remote server's request for a knock event template
// on behalf of one of its users.
type KnockRequest struct {
	// Origin is the requesting server, taken from the authenticated
	// request signature.
	Origin ref.ServerName

	// Room is the room being knocked on.
	Room ref.RoomID

	// User is the knocking user. Must belong to Origin.
	User ref.UserID

	// SupportedVersions lists the room versions the requesting server
	// supports (the "ver" query parameters).
	SupportedVersions []RoomVersion
}

// KnockResponse carries the signed knock event, formatted for the
// room's version, plus the version itself.
type KnockResponse struct {
	RoomVersion RoomVersion     `json:"room_version"`
	Event       json.RawMessage `json:"event"`
}

// CreateKnock validates, constructs, authorizes, and persists a knock
// membership event for a remote user, or rejects the attempt.
//
// The preconditions form a strict gate chain — the first failure wins,
// and nothing is written before every gate has passed. The membership
// ban check and the event write both happen under a single acquisition
// of the room's mutation lock, so a ban landing concurrently is either
// fully before this knock (and rejects it) or fully after it.
func (s *Service) CreateKnock(ctx context.Context, req KnockRequest) (*KnockResponse, error) {
	exists, err := s.metadata.Exists(ctx, req.Room)
	if err != nil {
		return nil, fmt.Errorf("checking room existence: %w", err)
	}
	if !exists {
		return nil, NotFound("Room is unknown to this server.")
	}

	// A server may only knock on behalf of its own users.
	if req.User.ServerName() != req.Origin {
		return nil, BadJSON("Not allowed to knock on behalf of another server/user.")
	}

	allowed, err := s.acl.ACLCheck(ctx, req.Origin, req.Room)
	if err != nil {
		return nil, fmt.Errorf("evaluating room ACL: %w", err)
	}
	if !allowed {
		return nil, Forbidden("Server is banned.")
	}

	if s.forbidden.ForbiddenHost(req.Origin.Host()) {
		s.logger.Warn("knock from globally forbidden server rejected",
			"origin", req.Origin.String(),
			"user", req.User.String(),
			"room", req.Room.String(),
		)
		return nil, Forbidden("Server is banned on this homeserver.")
	}
	if roomServer, ok := req.Room.ServerName(); ok && s.forbidden.ForbiddenHost(roomServer.Host()) {
		return nil, Forbidden("Server is banned on this homeserver.")
	}

	version, err := s.metadata.RoomVersion(ctx, req.Room)
	if err != nil {
		return nil, fmt.Errorf("reading room version: %w", err)
	}
	if !version.SupportsKnocking() {
		return nil, IncompatibleRoomVersion(version, "Room version does not support knocking.")
	}
	if !slices.Contains(req.SupportedVersions, version) {
		return nil, IncompatibleRoomVersion(version, "Your homeserver does not support the features required to knock on this room.")
	}

	guard, err := s.locks.Acquire(ctx, req.Room)
	if err != nil {
		return nil, fmt.Errorf("acquiring room lock: %w", err)
	}
	defer guard.Release()

	membership, err := s.accessor.Member(ctx, req.Room, req.User)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("reading membership: %w", err)
	}
	if membership == MembershipBan {
		s.logger.Debug("banned user attempted to knock",
			"user", req.User.String(),
			"room", req.Room.String(),
		)
		return nil, Forbidden("You cannot knock on a room you are banned from.")
	}

	_, pdu, err := s.timeline.CreateHashAndSignEvent(ctx,
		MemberBuilder(req.User, MembershipKnock), req.User, req.Room, guard)
	if err != nil {
		return nil, fmt.Errorf("creating knock event: %w", err)
	}

	// The critical section ends with the write; formatting and
	// response assembly happen outside the lock.
	guard.Release()

	return &KnockResponse{
		RoomVersion: version,
		Event:       FormatPDU(pdu, &version),
	}, nil
}
