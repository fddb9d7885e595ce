// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package serverglob matches server-name hosts against wildcard
// patterns. The pattern language is the one the Matrix server ACL
// event defines: '*' matches any run of characters (including dots)
// and '?' matches exactly one character. There is no escaping and no
// character classes.
//
// Two policy layers share this matcher: the room-level ACL evaluator
// (m.room.server_acl allow/deny lists) and the operator-level
// forbidden-remote-server list from the service config. Both match
// against the host portion of a server name — ports are stripped by
// the caller so that a ban on "evil.example" also covers
// "evil.example:8448".
package serverglob
