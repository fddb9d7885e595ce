// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import "fmt"

// RoomVersion selects which protocol rules apply to a room: event-id
// serialization format, knock support, and so on. It is fixed at room
// creation and immutable afterwards.
//
// The set of versions is closed: ParseRoomVersion rejects anything not
// in the capability table, so code past the boundary never sees a
// version it has no rules for.
type RoomVersion string

// All room versions this server understands.
const (
	RoomVersionV1  RoomVersion = "1"
	RoomVersionV2  RoomVersion = "2"
	RoomVersionV3  RoomVersion = "3"
	RoomVersionV4  RoomVersion = "4"
	RoomVersionV5  RoomVersion = "5"
	RoomVersionV6  RoomVersion = "6"
	RoomVersionV7  RoomVersion = "7"
	RoomVersionV8  RoomVersion = "8"
	RoomVersionV9  RoomVersion = "9"
	RoomVersionV10 RoomVersion = "10"
	RoomVersionV11 RoomVersion = "11"
)

// versionCapabilities is the per-version rule table. Adding a new room
// version is one entry here.
type versionCapabilities struct {
	// supportsKnocking: knocking arrived in room version 7. The six
	// legacy versions reject make_knock with M_INCOMPATIBLE_ROOM_VERSION.
	supportsKnocking bool

	// wireEventID: room versions 1 and 2 carry the event_id as an
	// explicit field in the federation wire format. Version 3 and
	// later derive the event ID from the reference hash, and the
	// field must not be duplicated on the wire.
	wireEventID bool
}

var capabilityTable = map[RoomVersion]versionCapabilities{
	RoomVersionV1:  {supportsKnocking: false, wireEventID: true},
	RoomVersionV2:  {supportsKnocking: false, wireEventID: true},
	RoomVersionV3:  {supportsKnocking: false, wireEventID: false},
	RoomVersionV4:  {supportsKnocking: false, wireEventID: false},
	RoomVersionV5:  {supportsKnocking: false, wireEventID: false},
	RoomVersionV6:  {supportsKnocking: false, wireEventID: false},
	RoomVersionV7:  {supportsKnocking: true, wireEventID: false},
	RoomVersionV8:  {supportsKnocking: true, wireEventID: false},
	RoomVersionV9:  {supportsKnocking: true, wireEventID: false},
	RoomVersionV10: {supportsKnocking: true, wireEventID: false},
	RoomVersionV11: {supportsKnocking: true, wireEventID: false},
}

// ParseRoomVersion validates a raw room version string against the
// closed capability table.
func ParseRoomVersion(raw string) (RoomVersion, error) {
	version := RoomVersion(raw)
	if _, ok := capabilityTable[version]; !ok {
		return "", fmt.Errorf("unsupported room version %q", raw)
	}
	return version, nil
}

// String returns the version tag as it appears on the wire (e.g. "9").
func (v RoomVersion) String() string { return string(v) }

// SupportsKnocking reports whether rooms of this version accept knock
// membership events.
func (v RoomVersion) SupportsKnocking() bool {
	return capabilityTable[v].supportsKnocking
}

// IncludesEventIDField reports whether the federation wire format for
// this version carries an explicit event_id field.
func (v RoomVersion) IncludesEventIDField() bool {
	return capabilityTable[v].wireEventID
}
