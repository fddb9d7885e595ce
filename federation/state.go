// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/homeserver/lib/ref"
)

// RoomStateRequest asks for a room's full state as of a specific event.
type RoomStateRequest struct {
	Origin ref.ServerName
	Room   ref.RoomID
	Event  ref.EventID
}

// RoomStateResponse carries the state snapshot and the auth-chain
// closure a peer needs to re-verify it. Both lists use the general
// federation wire format.
type RoomStateResponse struct {
	PDUs      []json.RawMessage `json:"pdus"`
	AuthChain []json.RawMessage `json:"auth_chain"`
}

// RoomState reconstructs the room's state at the given event for a
// federation peer, together with the transitive auth-chain closure
// rooted at that event.
//
// An access rejection and a missing state snapshot are distinct error
// kinds (Forbidden vs NotFound) so callers can separate "you may not
// ask" from "we don't have that history". An empty auth chain is not
// an error at this layer — chain validity is the receiving peer's
// problem.
func (s *Service) RoomState(ctx context.Context, req RoomStateRequest) (*RoomStateResponse, error) {
	err := s.CheckAccess(ctx, AccessCheck{Origin: req.Origin, Room: req.Room})
	if err != nil {
		return nil, err
	}

	shortStateHash, err := s.accessor.PDUShortStateHash(ctx, req.Event)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFound("PDU state not found.")
		}
		return nil, fmt.Errorf("resolving state snapshot for %s: %w", req.Event, err)
	}

	// The state fetch and the auth-chain traversal are independent;
	// fan out and join.
	var pdus, authChain []json.RawMessage
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		stateIDs, err := s.accessor.StateFullIDs(ctx, shortStateHash)
		if err != nil {
			return fmt.Errorf("enumerating state events: %w", err)
		}
		pdus, err = s.formatAll(ctx, stateIDs)
		return err
	})
	group.Go(func() error {
		chainIDs, err := s.authChain.AuthChainIDs(ctx, req.Room, []ref.EventID{req.Event})
		if err != nil {
			return fmt.Errorf("computing auth chain: %w", err)
		}
		authChain, err = s.formatAll(ctx, chainIDs)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &RoomStateResponse{PDUs: pdus, AuthChain: authChain}, nil
}

// formatAll fetches each event's stored JSON and applies the general
// federation wire format.
func (s *Service) formatAll(ctx context.Context, ids []ref.EventID) ([]json.RawMessage, error) {
	formatted := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		pdu, err := s.timeline.PDUJSON(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetching event %s: %w", id, err)
		}
		formatted = append(formatted, FormatPDU(pdu, nil))
	}
	return formatted, nil
}
