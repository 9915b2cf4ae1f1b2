// Package util holds small helpers shared across internal packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idBytes = 16

// NewID returns a random identifier, prefixed like "msg_3f2a..." when a
// prefix is given. 128 random bits keeps collisions out of the picture
// without any coordination.
func NewID(prefix string) string {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform's entropy source is gone;
		// nothing sensible can continue.
		panic(err)
	}
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
