// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/homeserver/lib/ref"
)

// AccessCheck identifies one inbound federation request to be admitted
// or rejected: which server is asking, about which room, and optionally
// about which specific event.
type AccessCheck struct {
	Origin ref.ServerName
	Room   ref.RoomID

	// Event scopes the check to a specific event when non-zero. A
	// zero Event is a room-level check.
	Event ref.EventID
}

// accessSignals holds the resolved values of the five independent
// sub-checks. None of them depends on another; they are fetched
// concurrently and judged together by decide.
type accessSignals struct {
	aclOK         bool
	worldReadable bool
	serverInRoom  bool
	knockingCount int

	// canSeeEvent is nil when the check has no target event.
	canSeeEvent *bool
}

// decide applies the rejection rules in their fixed order. Pure
// function of the signals: the fetch order never influences the
// outcome, only this rule order does.
func (s accessSignals) decide() error {
	if !s.aclOK {
		return Forbidden("Server access denied.")
	}
	// A local user mid-knock must be able to see enough of the room
	// to complete the knock even though their server is not yet in
	// the room, hence the knockingCount carve-out.
	if !s.worldReadable && !s.serverInRoom && s.knockingCount == 0 {
		return Forbidden("Server is not in room.")
	}
	if s.canSeeEvent != nil && !*s.canSeeEvent {
		return Forbidden("Server is not allowed to see event.")
	}
	return nil
}

// CheckAccess decides whether the origin server is currently permitted
// to interact with the room (and, when check.Event is set, to see that
// specific event). The five sub-checks are issued concurrently and
// joined before the decision runs; a store failure in any of them
// aborts the whole check with that error rather than a rejection.
func (s *Service) CheckAccess(ctx context.Context, check AccessCheck) error {
	var signals accessSignals

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		allowed, err := s.acl.ACLCheck(ctx, check.Origin, check.Room)
		if err != nil {
			return err
		}
		signals.aclOK = allowed
		return nil
	})
	group.Go(func() error {
		worldReadable, err := s.accessor.IsWorldReadable(ctx, check.Room)
		if err != nil {
			return err
		}
		signals.worldReadable = worldReadable
		return nil
	})
	group.Go(func() error {
		inRoom, err := s.cache.ServerInRoom(ctx, check.Origin, check.Room)
		if err != nil {
			return err
		}
		signals.serverInRoom = inRoom
		return nil
	})
	group.Go(func() error {
		count, err := s.cache.RoomMembersKnocked(ctx, check.Room)
		if err != nil {
			return err
		}
		signals.knockingCount = count
		return nil
	})
	if !check.Event.IsZero() {
		group.Go(func() error {
			canSee, err := s.accessor.ServerCanSeeEvent(ctx, check.Origin, check.Room, check.Event)
			if err != nil {
				return err
			}
			signals.canSeeEvent = &canSee
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if err := signals.decide(); err != nil {
		s.logger.Debug("federation access rejected",
			"origin", check.Origin.String(),
			"room", check.Room.String(),
			"error", err,
		)
		return err
	}
	return nil
}
