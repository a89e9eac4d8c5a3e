package store

import (
	"encoding/base64"
	"encoding/json"

	"github.com/queelius/ctk/internal/ctkerr"
)

// cursorPayload is the decoded shape of a keyset cursor
// (spec.md §4.2/§6.1): {"u": <iso-datetime>, "id": <string>}, exactly the
// format of original_source/ctk/core/pagination.py's encode_cursor.
type cursorPayload struct {
	U string `json:"u"`
	ID string `json:"id"`
}

// EncodeCursor builds the opaque continuation token for (updatedAt, id).
func EncodeCursor(updatedAtISO, id string) string {
	payload := cursorPayload{U: updatedAtISO, ID: id}
	data, _ := json.Marshal(payload)
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor reverses EncodeCursor, rejecting malformed base64, malformed
// JSON, or missing fields (spec.md §6.1).
func DecodeCursor(cursor string) (updatedAtISO, id string, err error) {
	data, decErr := base64.URLEncoding.DecodeString(cursor)
	if decErr != nil {
		return "", "", &ctkerr.ValidationError{Field: "cursor", Reason: "malformed base64"}
	}

	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", "", &ctkerr.ValidationError{Field: "cursor", Reason: "malformed JSON"}
	}

	if payload.U == "" || payload.ID == "" {
		return "", "", &ctkerr.ValidationError{Field: "cursor", Reason: "missing required fields"}
	}

	return payload.U, payload.ID, nil
}
