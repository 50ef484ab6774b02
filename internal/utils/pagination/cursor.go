package pagination

import (
	"encoding/base64"
	"fmt"

	json "github.com/goccy/go-json"
)

// Cursor is the opaque pagination state we encode/decode.
// Before is a position in an append-only log; the next page holds entries
// strictly below it. AtUnix (millis) pins the entry at Before-1 so a token
// replayed against a different log is rejected.
type Cursor struct {
	Before int   `json:"before"`
	AtUnix int64 `json:"at_unix,omitempty"`
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.Before < 0 {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}
	return c, nil
}
