// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import "github.com/bureau-foundation/homeserver/lib/ref"

// Membership states carried in m.room.member event content.
const (
	MembershipJoin   = "join"
	MembershipLeave  = "leave"
	MembershipInvite = "invite"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// State event types this subsystem reads or writes.
const (
	EventTypeCreate            = "m.room.create"
	EventTypeMember            = "m.room.member"
	EventTypePowerLevels       = "m.room.power_levels"
	EventTypeHistoryVisibility = "m.room.history_visibility"
	EventTypeServerACL         = "m.room.server_acl"
)

// History visibility settings from m.room.history_visibility content.
const (
	HistoryVisibilityWorldReadable = "world_readable"
	HistoryVisibilityShared        = "shared"
	HistoryVisibilityInvited       = "invited"
	HistoryVisibilityJoined        = "joined"
)

// MemberContent is the content of an m.room.member state event.
type MemberContent struct {
	Membership string `json:"membership"`
}

// PDUBuilder describes a new event to be hashed, signed, and appended
// by the timeline store. The store fills in room ID, sender, origin
// timestamp, prev_events, auth_events, hashes, signatures, and the
// event ID.
type PDUBuilder struct {
	// Type is the event type (e.g. "m.room.member").
	Type string

	// StateKey is non-nil for state events.
	StateKey *string

	// Content is marshalled as the event's content object.
	Content any
}

// MemberBuilder constructs the builder for a membership state event:
// state key = the affected user, content = the membership value.
func MemberBuilder(user ref.UserID, membership string) PDUBuilder {
	stateKey := user.String()
	return PDUBuilder{
		Type:     EventTypeMember,
		StateKey: &stateKey,
		Content:  MemberContent{Membership: membership},
	}
}
