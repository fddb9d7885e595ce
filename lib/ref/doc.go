// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated value types for the Matrix identifiers
// that cross the federation boundary: [RoomID], [UserID], [EventID], and
// [ServerName].
//
// Identifiers arriving from remote servers are untrusted strings. They
// are parsed into these types exactly once, at the request boundary, and
// passed through the rest of the code as immutable values. The zero
// value of every type is invalid; use IsZero to check.
//
// Validation is structural only (sigils, separators, character classes).
// Whether an identifier refers to anything real is a question for the
// room graph, not for this package.
package ref
