// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import "testing"

func TestParseRoomVersion(t *testing.T) {
	for _, raw := range []string{"1", "6", "7", "11"} {
		if _, err := ParseRoomVersion(raw); err != nil {
			t.Errorf("ParseRoomVersion(%q) failed: %v", raw, err)
		}
	}
	for _, raw := range []string{"", "0", "12", "banana", "v9"} {
		if _, err := ParseRoomVersion(raw); err == nil {
			t.Errorf("ParseRoomVersion(%q): expected error", raw)
		}
	}
}

func TestVersionCapabilities(t *testing.T) {
	legacy := []RoomVersion{RoomVersionV1, RoomVersionV2, RoomVersionV3, RoomVersionV4, RoomVersionV5, RoomVersionV6}
	for _, version := range legacy {
		if version.SupportsKnocking() {
			t.Errorf("version %s must not support knocking", version)
		}
	}
	for _, version := range []RoomVersion{RoomVersionV7, RoomVersionV8, RoomVersionV9, RoomVersionV10, RoomVersionV11} {
		if !version.SupportsKnocking() {
			t.Errorf("version %s must support knocking", version)
		}
	}

	for _, version := range []RoomVersion{RoomVersionV1, RoomVersionV2} {
		if !version.IncludesEventIDField() {
			t.Errorf("version %s must carry event_id on the wire", version)
		}
	}
	for _, version := range []RoomVersion{RoomVersionV3, RoomVersionV9, RoomVersionV11} {
		if version.IncludesEventIDField() {
			t.Errorf("version %s must not carry event_id on the wire", version)
		}
	}
}
