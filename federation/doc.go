// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package federation implements the server-to-server access-control
// and room-state synchronization protocols of a Matrix homeserver.
//
// Three operations make up the core, all hanging off [Service]:
//
//   - [Service.CheckAccess] — the composite authorization predicate
//     gating inbound federation requests against a room: five
//     independent sub-checks (room ACL, world-readability, origin
//     membership, local knockers, per-event visibility) evaluated
//     concurrently and combined with a fixed-order decision rule.
//   - [Service.CreateKnock] — the knock admission protocol: a strictly
//     ordered gate chain validating a remote user's request to knock
//     on a room, followed by construction and signing of the knock
//     membership event under the room's mutation lock.
//   - [Service.RoomState] — the room-state snapshot protocol: the full
//     state of a room as of a given event, plus the auth-chain closure
//     a peer needs to independently re-verify that state.
//
// The event graph itself lives behind the collaborator interfaces
// ([RoomMetadata], [StateAccessor], [StateCache], [Timeline],
// [AuthChain], [ACL]); the roomgraph package provides the SQLite-backed
// implementation used by cmd/federationd. This package owns the
// protocol: which checks run, in what order, under which lock, and
// what reaches the wire.
//
// All rejections are returned as [*Error] with the standard Matrix
// error code (M_FORBIDDEN, M_NOT_FOUND, M_INCOMPATIBLE_ROOM_VERSION)
// and HTTP status. Store failures propagate as ordinary wrapped errors
// and are never converted into rejections.
package federation
