// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bureau-foundation/homeserver/lib/ref"
)

// fakeGraph is an in-memory stand-in for every collaborator contract.
// Zero value denies everything; tests flip the fields they need. All
// methods record their name in calls so tests can assert which gates
// ran and in what order.
type fakeGraph struct {
	mu    sync.Mutex
	calls []string

	roomExists    bool
	roomVersion   RoomVersion
	aclAllowed    bool
	aclErr        error
	worldReadable bool
	serverInRoom  bool
	knockedCount  int
	canSeeEvent   bool
	canSeeErr     error

	// memberships maps user ID -> membership state.
	memberships map[string]string

	// pdus maps event ID -> stored JSON document.
	pdus map[string]json.RawMessage

	// shortStateHashes maps event ID -> short state hash.
	shortStateHashes map[string]int64

	// stateSets maps short state hash -> state event ids.
	stateSets map[int64][]ref.EventID

	// authChains maps root event ID -> closure.
	authChains map[string][]ref.EventID

	// onCreate, when set, runs inside CreateHashAndSignEvent before
	// the event is recorded. Used by the mutual-exclusion tests.
	onCreate func(g *fakeGraph, sender ref.UserID)

	createCount int
}

func (g *fakeGraph) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGraph) recorded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGraph) called(name string) bool {
	for _, call := range g.recorded() {
		if call == name {
			return true
		}
	}
	return false
}

func (g *fakeGraph) ACLCheck(ctx context.Context, origin ref.ServerName, room ref.RoomID) (bool, error) {
	g.record("acl")
	return g.aclAllowed, g.aclErr
}

func (g *fakeGraph) Exists(ctx context.Context, room ref.RoomID) (bool, error) {
	g.record("exists")
	return g.roomExists, nil
}

func (g *fakeGraph) RoomVersion(ctx context.Context, room ref.RoomID) (RoomVersion, error) {
	g.record("version")
	return g.roomVersion, nil
}

func (g *fakeGraph) IsWorldReadable(ctx context.Context, room ref.RoomID) (bool, error) {
	g.record("world_readable")
	return g.worldReadable, nil
}

func (g *fakeGraph) ServerCanSeeEvent(ctx context.Context, origin ref.ServerName, room ref.RoomID, event ref.EventID) (bool, error) {
	g.record("can_see_event")
	return g.canSeeEvent, g.canSeeErr
}

func (g *fakeGraph) Member(ctx context.Context, room ref.RoomID, user ref.UserID) (string, error) {
	g.record("member")
	g.mu.Lock()
	defer g.mu.Unlock()
	membership, ok := g.memberships[user.String()]
	if !ok {
		return "", ErrNotFound
	}
	return membership, nil
}

func (g *fakeGraph) PDUShortStateHash(ctx context.Context, event ref.EventID) (int64, error) {
	g.record("short_state_hash")
	hash, ok := g.shortStateHashes[event.String()]
	if !ok {
		return 0, ErrNotFound
	}
	return hash, nil
}

func (g *fakeGraph) StateFullIDs(ctx context.Context, shortStateHash int64) ([]ref.EventID, error) {
	g.record("state_full_ids")
	return g.stateSets[shortStateHash], nil
}

func (g *fakeGraph) ServerInRoom(ctx context.Context, server ref.ServerName, room ref.RoomID) (bool, error) {
	g.record("server_in_room")
	return g.serverInRoom, nil
}

func (g *fakeGraph) RoomMembersKnocked(ctx context.Context, room ref.RoomID) (int, error) {
	g.record("room_members_knocked")
	return g.knockedCount, nil
}

func (g *fakeGraph) PDUJSON(ctx context.Context, event ref.EventID) (json.RawMessage, error) {
	g.record("pdu_json")
	pdu, ok := g.pdus[event.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return pdu, nil
}

func (g *fakeGraph) CreateHashAndSignEvent(ctx context.Context, builder PDUBuilder, sender ref.UserID, room ref.RoomID, guard *RoomGuard) (ref.EventID, json.RawMessage, error) {
	g.record("create")
	if guard == nil || guard.Room() != room {
		return ref.EventID{}, nil, fmt.Errorf("create called without the room lock for %s", room)
	}
	if g.onCreate != nil {
		g.onCreate(g, sender)
	}

	g.mu.Lock()
	g.createCount++
	eventID := ref.MustParseEventID(fmt.Sprintf("$created-%d", g.createCount))
	g.mu.Unlock()

	content, err := json.Marshal(builder.Content)
	if err != nil {
		return ref.EventID{}, nil, err
	}
	document := map[string]any{
		"event_id": eventID.String(),
		"type":     builder.Type,
		"sender":   sender.String(),
		"room_id":  room.String(),
		"content":  json.RawMessage(content),
	}
	if builder.StateKey != nil {
		document["state_key"] = *builder.StateKey
	}
	pdu, err := json.Marshal(document)
	if err != nil {
		return ref.EventID{}, nil, err
	}
	return eventID, pdu, nil
}

func (g *fakeGraph) AuthChainIDs(ctx context.Context, room ref.RoomID, roots []ref.EventID) ([]ref.EventID, error) {
	g.record("auth_chain")
	seen := make(map[string]bool)
	var chain []ref.EventID
	for _, root := range roots {
		for _, id := range g.authChains[root.String()] {
			if !seen[id.String()] {
				seen[id.String()] = true
				chain = append(chain, id)
			}
		}
	}
	return chain, nil
}

// forbiddenHosts is a ForbiddenServers backed by a fixed set.
type forbiddenHosts map[string]bool

func (f forbiddenHosts) ForbiddenHost(host string) bool { return f[host] }

// newTestService wires a Service around the fake graph with no
// forbidden hosts. Tests that need a forbidden list use newService
// directly.
func newTestService(graph *fakeGraph, forbidden forbiddenHosts) *Service {
	service, err := NewService(ServiceConfig{
		ACL:       graph,
		Metadata:  graph,
		Accessor:  graph,
		Cache:     graph,
		Timeline:  graph,
		AuthChain: graph,
		Forbidden: forbidden,
		Locks:     NewRoomLocks(),
	})
	if err != nil {
		panic(err)
	}
	return service
}
