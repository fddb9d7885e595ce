// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FormatPDU converts a stored PDU document into the federation wire
// format. Stored documents carry the event_id alongside the signed
// fields; on the wire, room versions 3 and later must omit it (the id
// is derivable from the reference hash and duplicating it would invite
// mismatches), while versions 1 and 2 keep it as an explicit field.
//
// A nil version applies the general rule — event_id stripped — which
// is what the state-snapshot responses use. The document is otherwise
// passed through byte-for-byte.
func FormatPDU(pdu json.RawMessage, version *RoomVersion) json.RawMessage {
	if version != nil && version.IncludesEventIDField() {
		return pdu
	}
	if !gjson.GetBytes(pdu, "event_id").Exists() {
		return pdu
	}
	stripped, err := sjson.DeleteBytes([]byte(pdu), "event_id")
	if err != nil {
		// Delete on an existing key only fails for malformed JSON,
		// which the store never hands us. Pass the document through
		// rather than dropping it.
		return pdu
	}
	return stripped
}
