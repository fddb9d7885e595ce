// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/homeserver/lib/ref"
	"github.com/bureau-foundation/homeserver/lib/testutil"
)

func TestRoomLocks(t *testing.T) {
	roomA := ref.MustParseRoomID("!a:example.org")
	roomB := ref.MustParseRoomID("!b:example.org")

	t.Run("mutual exclusion per room", func(t *testing.T) {
		locks := NewRoomLocks()
		guard, err := locks.Acquire(context.Background(), roomA)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		acquired := make(chan *RoomGuard, 1)
		go func() {
			second, err := locks.Acquire(context.Background(), roomA)
			if err != nil {
				t.Errorf("second Acquire failed: %v", err)
			}
			acquired <- second
		}()

		select {
		case <-acquired:
			t.Fatal("second acquisition succeeded while the lock was held")
		case <-time.After(50 * time.Millisecond):
		}

		guard.Release()
		second := testutil.RequireReceive(t, acquired, 5*time.Second, "second acquisition after release")
		second.Release()
	})

	t.Run("different rooms do not contend", func(t *testing.T) {
		locks := NewRoomLocks()
		guardA, err := locks.Acquire(context.Background(), roomA)
		if err != nil {
			t.Fatalf("Acquire(roomA) failed: %v", err)
		}
		defer guardA.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		guardB, err := locks.Acquire(ctx, roomB)
		if err != nil {
			t.Fatalf("Acquire(roomB) blocked on roomA's lock: %v", err)
		}
		guardB.Release()
	})

	t.Run("release is idempotent", func(t *testing.T) {
		locks := NewRoomLocks()
		guard, err := locks.Acquire(context.Background(), roomA)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		guard.Release()
		guard.Release() // second release must not free someone else's hold

		next, err := locks.Acquire(context.Background(), roomA)
		if err != nil {
			t.Fatalf("reacquire failed: %v", err)
		}

		blocked := make(chan struct{})
		go func() {
			third, err := locks.Acquire(context.Background(), roomA)
			if err == nil {
				third.Release()
			}
			close(blocked)
		}()
		select {
		case <-blocked:
			t.Fatal("double release freed the lock twice")
		case <-time.After(50 * time.Millisecond):
		}
		next.Release()
		testutil.RequireClosed(t, blocked, 5*time.Second, "third acquisition after release")
	})

	t.Run("acquire honors cancellation", func(t *testing.T) {
		locks := NewRoomLocks()
		guard, err := locks.Acquire(context.Background(), roomA)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer guard.Release()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := locks.Acquire(ctx, roomA); err == nil {
			t.Fatal("expected cancellation error while the lock is held")
		}
	})
}
