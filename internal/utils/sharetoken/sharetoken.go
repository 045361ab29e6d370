// Package sharetoken generates the unguessable identifiers behind public
// share links. Tokens are pure random material: unlike ULIDs they carry no
// timestamp prefix, so knowing when a share was minted gives an attacker
// nothing.
package sharetoken

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// tokenBytes gives 256 bits of entropy, which keeps collision probability
// negligible across any realistic number of shares.
const tokenBytes = 32

// New returns a URL-safe random share token.
func New() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsValid reports whether value has the shape of a token produced by New.
// It is a syntactic check only; resolution decides whether the share exists.
func IsValid(value string) bool {
	value = strings.TrimSpace(value)
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return false
	}
	return len(raw) == tokenBytes
}
