// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package roomgraph is the SQLite-backed room event graph behind the
// federation protocol layer. It implements every collaborator contract
// the federation package consumes: room metadata, the resolved-state
// index (including per-event short-state-hash snapshots), the
// membership cache, the timeline store with event construction and
// ed25519 signing, the auth-chain index, and the room ACL evaluator.
//
// The graph is append-only: events are inserted once, with their
// auth_events edges, and never mutated. State events additionally
// advance the room's current-state table and mint a new state snapshot
// (a short state hash mapping to the full set of state event ids at
// that point); timeline events reuse the room's latest snapshot. This
// is the indirection that lets a peer ask "the state as of event X"
// without the store keeping a full copy per event.
//
// Storage runs through lib/sqlitepool. Connections are taken per
// operation; writes that touch multiple tables run inside a savepoint
// so a failure leaves no partial event.
package roomgraph
