// Package pagecursor encodes the store's native continuation key as an
// opaque, URL-safe cursor string.
package pagecursor

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Key is the continuation position of a paginated listing.
type Key struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

// Encode wraps a continuation key into an opaque cursor. A nil key encodes
// to the empty string (no further pages).
func Encode(key *Key) string {
	if key == nil {
		return ""
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode unwraps a cursor produced by Encode. Stale or mangled cursors are
// routinely replayed by clients, so any decode failure means "start from the
// beginning" rather than an error.
func Decode(cursor string) *Key {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil
	}
	var key Key
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil
	}
	if key.PK == "" || key.SK == "" {
		return nil
	}
	return &key
}
