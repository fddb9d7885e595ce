// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"sync"

	"github.com/bureau-foundation/homeserver/lib/ref"
)

// RoomLocks serializes state mutations per room. Every call site that
// appends a state-changing event to a room (knocks here; joins, leaves,
// invites elsewhere) must hold the room's lock while it checks current
// state and writes the new event, so that two conflicting forks cannot
// be created from the same starting point.
//
// Entries are created lazily on first acquisition and never evicted:
// the table's cardinality is bounded by the number of rooms this
// server has seen, which is low relative to its lifetime.
type RoomLocks struct {
	mu    sync.Mutex
	rooms map[string]chan struct{}
}

// NewRoomLocks creates an empty lock table.
func NewRoomLocks() *RoomLocks {
	return &RoomLocks{rooms: make(map[string]chan struct{})}
}

// Acquire blocks until the room's lock is held or ctx is cancelled.
// The returned guard must be released on every exit path; Release is
// idempotent, so the usual shape is an immediate defer plus an
// explicit early Release once the critical section ends:
//
//	guard, err := locks.Acquire(ctx, room)
//	if err != nil {
//	    return err
//	}
//	defer guard.Release()
//	... check state, write event ...
//	guard.Release() // before formatting and response assembly
func (l *RoomLocks) Acquire(ctx context.Context, room ref.RoomID) (*RoomGuard, error) {
	l.mu.Lock()
	semaphore, ok := l.rooms[room.String()]
	if !ok {
		semaphore = make(chan struct{}, 1)
		l.rooms[room.String()] = semaphore
	}
	l.mu.Unlock()

	select {
	case semaphore <- struct{}{}:
		return &RoomGuard{room: room, semaphore: semaphore}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RoomGuard is an exclusive hold on one room's mutation lock. It is
// also the token proving to the timeline store that its caller holds
// the lock while creating a state event.
type RoomGuard struct {
	room      ref.RoomID
	semaphore chan struct{}
	once      sync.Once
}

// Room returns the room this guard locks.
func (g *RoomGuard) Room() ref.RoomID { return g.room }

// Release frees the lock. Idempotent: only the first call has effect.
func (g *RoomGuard) Release() {
	g.once.Do(func() { <-g.semaphore })
}
