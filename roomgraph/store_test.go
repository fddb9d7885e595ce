// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomgraph

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/bureau-foundation/homeserver/federation"
	"github.com/bureau-foundation/homeserver/lib/ref"
	"github.com/bureau-foundation/homeserver/lib/sqlitepool"
)

var (
	localServer = ref.MustParseServerName("example.org")
	testRoom    = ref.MustParseRoomID("!test:example.org")
	admin       = ref.MustParseUserID("@admin:example.org")
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: ":memory:", PoolSize: 1})
	if err != nil {
		t.Fatalf("opening pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	store, err := Open(context.Background(), Config{
		Pool:       pool,
		ServerName: localServer,
		SigningKey: key,
		Locks:      federation.NewRoomLocks(),
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return store
}

func newTestRoom(t *testing.T, store *Store, version federation.RoomVersion) {
	t.Helper()
	if err := store.CreateRoom(context.Background(), testRoom, version, admin); err != nil {
		t.Fatalf("creating room: %v", err)
	}
}

func setState(t *testing.T, store *Store, builder federation.PDUBuilder) ref.EventID {
	t.Helper()
	eventID, err := store.SetState(context.Background(), testRoom, admin, builder)
	if err != nil {
		t.Fatalf("appending %s: %v", builder.Type, err)
	}
	return eventID
}

func stateBuilder(eventType string, content any) federation.PDUBuilder {
	emptyKey := ""
	return federation.PDUBuilder{Type: eventType, StateKey: &emptyKey, Content: content}
}

func TestCreateRoom(t *testing.T) {
	store := newTestStore(t)
	newTestRoom(t, store, federation.RoomVersionV9)
	ctx := context.Background()

	exists, err := store.Exists(ctx, testRoom)
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true", exists, err)
	}
	version, err := store.RoomVersion(ctx, testRoom)
	if err != nil || version != federation.RoomVersionV9 {
		t.Fatalf("RoomVersion = %q, %v; want 9", version, err)
	}
	membership, err := store.Member(ctx, testRoom, admin)
	if err != nil || membership != federation.MembershipJoin {
		t.Fatalf("creator membership = %q, %v; want join", membership, err)
	}

	exists, err = store.Exists(ctx, ref.MustParseRoomID("!nowhere:example.org"))
	if err != nil || exists {
		t.Fatalf("unknown room Exists = %v, %v; want false", exists, err)
	}
}

func TestEventDocument(t *testing.T) {
	store := newTestStore(t)
	newTestRoom(t, store, federation.RoomVersionV9)

	eventID := setState(t, store, stateBuilder(federation.EventTypeHistoryVisibility,
		map[string]any{"history_visibility": "shared"}))

	doc, err := store.PDUJSON(context.Background(), eventID)
	if err != nil {
		t.Fatalf("PDUJSON: %v", err)
	}

	if !strings.HasPrefix(eventID.String(), "$") {
		t.Errorf("event id %q lacks sigil", eventID)
	}
	if got := gjson.GetBytes(doc, "event_id").String(); got != eventID.String() {
		t.Errorf("stored event_id = %q, want %q", got, eventID)
	}
	if got := gjson.GetBytes(doc, "room_id").String(); got != testRoom.String() {
		t.Errorf("room_id = %q", got)
	}
	if got := gjson.GetBytes(doc, "depth").Int(); got != 3 {
		t.Errorf("depth = %d, want 3 (create, join, this)", got)
	}
	if n := len(gjson.GetBytes(doc, "prev_events").Array()); n != 1 {
		t.Errorf("prev_events has %d entries, want 1", n)
	}
	// Auth events: the create event and the sender's join. No power
	// levels event exists in this room.
	if n := len(gjson.GetBytes(doc, "auth_events").Array()); n != 2 {
		t.Errorf("auth_events has %d entries, want 2", n)
	}
	if !gjson.GetBytes(doc, "hashes.sha256").Exists() {
		t.Error("missing content hash")
	}

	// The signature must verify over the canonical form without
	// event_id and signatures.
	sigPath := "signatures." + strings.ReplaceAll(localServer.String(), ".", "\\.") + "." + strings.ReplaceAll(store.keyID, ".", "\\.")
	signature, err := base64.RawStdEncoding.DecodeString(gjson.GetBytes(doc, sigPath).String())
	if err != nil {
		t.Fatalf("decoding signature: %v", err)
	}
	var event map[string]any
	decoder := json.NewDecoder(bytes.NewReader(doc))
	decoder.UseNumber()
	if err := decoder.Decode(&event); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	delete(event, "event_id")
	delete(event, "signatures")
	signable, err := canonicalJSON(event)
	if err != nil {
		t.Fatalf("canonical form: %v", err)
	}
	public := store.signingKey.Public().(ed25519.PublicKey)
	if !ed25519.Verify(public, signable, signature) {
		t.Error("event signature does not verify")
	}
}

func TestStateSnapshots(t *testing.T) {
	store := newTestStore(t)
	newTestRoom(t, store, federation.RoomVersionV9)
	ctx := context.Background()

	visibilityID := setState(t, store, stateBuilder(federation.EventTypeHistoryVisibility,
		map[string]any{"history_visibility": "world_readable"}))

	hash, err := store.PDUShortStateHash(ctx, visibilityID)
	if err != nil {
		t.Fatalf("PDUShortStateHash: %v", err)
	}
	ids, err := store.StateFullIDs(ctx, hash)
	if err != nil {
		t.Fatalf("StateFullIDs: %v", err)
	}
	// create + admin join + history visibility.
	if len(ids) != 3 {
		t.Fatalf("snapshot has %d state events, want 3", len(ids))
	}
	found := false
	for _, id := range ids {
		if id == visibilityID {
			found = true
		}
	}
	if !found {
		t.Error("snapshot does not include the event that created it")
	}

	worldReadable, err := store.IsWorldReadable(ctx, testRoom)
	if err != nil || !worldReadable {
		t.Fatalf("IsWorldReadable = %v, %v; want true", worldReadable, err)
	}

	// Replacing the visibility produces a new snapshot; the old event
	// keeps its own.
	sharedID := setState(t, store, stateBuilder(federation.EventTypeHistoryVisibility,
		map[string]any{"history_visibility": "shared"}))
	worldReadable, err = store.IsWorldReadable(ctx, testRoom)
	if err != nil || worldReadable {
		t.Fatalf("IsWorldReadable after replacement = %v, %v; want false", worldReadable, err)
	}
	newHash, err := store.PDUShortStateHash(ctx, sharedID)
	if err != nil {
		t.Fatalf("PDUShortStateHash: %v", err)
	}
	if newHash == hash {
		t.Error("replacement state event reused the previous snapshot")
	}

	_, err = store.PDUShortStateHash(ctx, ref.MustParseEventID("$missing"))
	if err != federation.ErrNotFound {
		t.Errorf("missing event snapshot error = %v, want ErrNotFound", err)
	}
}

func TestMembershipIndex(t *testing.T) {
	store := newTestStore(t)
	newTestRoom(t, store, federation.RoomVersionV9)
	ctx := context.Background()

	localKnocker := ref.MustParseUserID("@knock:example.org")
	remoteKnocker := ref.MustParseUserID("@knock:other.org")
	setState(t, store, federation.MemberBuilder(localKnocker, federation.MembershipKnock))
	setState(t, store, federation.MemberBuilder(remoteKnocker, federation.MembershipKnock))

	// Only local users count.
	count, err := store.RoomMembersKnocked(ctx, testRoom)
	if err != nil || count != 1 {
		t.Fatalf("RoomMembersKnocked = %d, %v; want 1", count, err)
	}

	inRoom, err := store.ServerInRoom(ctx, ref.MustParseServerName("other.org"), testRoom)
	if err != nil || !inRoom {
		t.Fatalf("knocking server ServerInRoom = %v, %v; want true", inRoom, err)
	}
	inRoom, err = store.ServerInRoom(ctx, ref.MustParseServerName("stranger.org"), testRoom)
	if err != nil || inRoom {
		t.Fatalf("stranger ServerInRoom = %v, %v; want false", inRoom, err)
	}

	// A ban replaces the knock and removes the server's standing.
	setState(t, store, federation.MemberBuilder(remoteKnocker, federation.MembershipBan))
	membership, err := store.Member(ctx, testRoom, remoteKnocker)
	if err != nil || membership != federation.MembershipBan {
		t.Fatalf("membership after ban = %q, %v", membership, err)
	}
	inRoom, err = store.ServerInRoom(ctx, ref.MustParseServerName("other.org"), testRoom)
	if err != nil || inRoom {
		t.Fatalf("banned server ServerInRoom = %v, %v; want false", inRoom, err)
	}

	_, err = store.Member(ctx, testRoom, ref.MustParseUserID("@absent:example.org"))
	if err != federation.ErrNotFound {
		t.Errorf("absent member error = %v, want ErrNotFound", err)
	}
}

func TestServerCanSeeEvent(t *testing.T) {
	store := newTestStore(t)
	newTestRoom(t, store, federation.RoomVersionV9)
	ctx := context.Background()
	stranger := ref.MustParseServerName("stranger.org")

	sharedID := setState(t, store, stateBuilder(federation.EventTypeHistoryVisibility,
		map[string]any{"history_visibility": "shared"}))
	visible, err := store.ServerCanSeeEvent(ctx, stranger, testRoom, sharedID)
	if err != nil || visible {
		t.Fatalf("stranger sees shared event = %v, %v; want false", visible, err)
	}

	worldID := setState(t, store, stateBuilder(federation.EventTypeHistoryVisibility,
		map[string]any{"history_visibility": "world_readable"}))
	visible, err = store.ServerCanSeeEvent(ctx, stranger, testRoom, worldID)
	if err != nil || !visible {
		t.Fatalf("stranger sees world-readable event = %v, %v; want true", visible, err)
	}

	// Visibility is judged at the event's own snapshot: tightening it
	// afterwards does not hide the earlier event.
	setState(t, store, stateBuilder(federation.EventTypeHistoryVisibility,
		map[string]any{"history_visibility": "joined"}))
	visible, err = store.ServerCanSeeEvent(ctx, stranger, testRoom, worldID)
	if err != nil || !visible {
		t.Fatalf("stranger sees historic world-readable event = %v, %v; want true", visible, err)
	}
}

func TestACLCheck(t *testing.T) {
	store := newTestStore(t)
	newTestRoom(t, store, federation.RoomVersionV9)
	ctx := context.Background()

	allowed, err := store.ACLCheck(ctx, ref.MustParseServerName("anyone.example"), testRoom)
	if err != nil || !allowed {
		t.Fatalf("no-ACL room denied a server: %v, %v", allowed, err)
	}

	setState(t, store, stateBuilder(federation.EventTypeServerACL, map[string]any{
		"allow":             []string{"*"},
		"deny":              []string{"evil.example", "*.badnet.example"},
		"allow_ip_literals": false,
	}))

	cases := []struct {
		origin string
		want   bool
	}{
		{"good.example", true},
		{"evil.example", false},
		{"deep.badnet.example", false},
		{"good.example:8448", true},
		{"1.2.3.4", false},
		{"[2001:db8::1]:8448", false},
	}
	for _, tc := range cases {
		allowed, err := store.ACLCheck(ctx, ref.MustParseServerName(tc.origin), testRoom)
		if err != nil {
			t.Fatalf("ACLCheck(%s): %v", tc.origin, err)
		}
		if allowed != tc.want {
			t.Errorf("ACLCheck(%s) = %v, want %v", tc.origin, allowed, tc.want)
		}
	}

	// An allow list that matches nothing admits nobody.
	setState(t, store, stateBuilder(federation.EventTypeServerACL, map[string]any{
		"allow": []string{"only.example"},
	}))
	allowed, err = store.ACLCheck(ctx, ref.MustParseServerName("good.example"), testRoom)
	if err != nil || allowed {
		t.Fatalf("unlisted server admitted: %v, %v", allowed, err)
	}
}

func TestAuthChainIDs(t *testing.T) {
	store := newTestStore(t)
	newTestRoom(t, store, federation.RoomVersionV9)
	ctx := context.Background()

	memberID := setState(t, store, federation.MemberBuilder(ref.MustParseUserID("@knock:other.org"), federation.MembershipKnock))

	chain, err := store.AuthChainIDs(ctx, testRoom, []ref.EventID{memberID})
	if err != nil {
		t.Fatalf("AuthChainIDs: %v", err)
	}
	// The member event is authed by the create event and the sender's
	// join; the join is authed by the create event again, which must be
	// deduplicated.
	if len(chain) != 2 {
		t.Fatalf("chain has %d events, want 2: %v", len(chain), chain)
	}
	for _, id := range chain {
		if id == memberID {
			t.Error("chain contains its own root")
		}
	}

	chain, err = store.AuthChainIDs(ctx, testRoom, nil)
	if err != nil || len(chain) != 0 {
		t.Fatalf("empty roots chain = %v, %v", chain, err)
	}
}

func TestLoadOrCreateSigningKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")

	key1, id1, err := LoadOrCreateSigningKey(path)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}
	key2, id2, err := LoadOrCreateSigningKey(path)
	if err != nil {
		t.Fatalf("reloading key: %v", err)
	}
	if !key1.Equal(key2) {
		t.Error("reloaded key differs")
	}
	if id1 != id2 {
		t.Errorf("key id changed across reload: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, "ed25519:") {
		t.Errorf("key id %q lacks algorithm prefix", id1)
	}
}
