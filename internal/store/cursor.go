package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// cursorPayload is the JSON shape base64-encoded into an opaque pagination
// cursor: (sort_key, id), generalizing a per-usecase
// scheduleCursor into one shared helper every list operation uses.
type cursorPayload struct {
	SortKey time.Time `json:"sort_key"`
	ID      string    `json:"id"`
}

// EncodeCursor builds the opaque cursor string for the last row of a page.
func EncodeCursor(sortKey time.Time, id string) string {
	b, _ := json.Marshal(cursorPayload{SortKey: sortKey, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(s string) (time.Time, string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode cursor: %w", err)
	}
	var c cursorPayload
	if err := json.Unmarshal(b, &c); err != nil {
		return time.Time{}, "", fmt.Errorf("unmarshal cursor: %w", err)
	}
	return c.SortKey, c.ID, nil
}
