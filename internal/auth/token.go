package auth

import (
	"strings"

	"github.com/google/uuid"
)

// NewTokenKey mints an opaque bearer credential. Unguessability comes from
// the 122 random bits of a v4 UUID; the dashes are stripped so the key reads
// as a single opaque string.
func NewTokenKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
