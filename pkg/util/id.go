package util

import (
	"crypto/rand"
	"fmt"
)

// NewID returns a random UUIDv4 string (RFC 4122 §4.4), formatted the
// usual 8-4-4-4-12 hex way. The orchestrator uses it for every entity
// that needs a globally unique id (jobs, in-memory subscriber handles)
// without pulling in a dedicated uuid library, the same way the teacher
// reaches for crypto/rand directly for its lab SSH keys
// (pkg/newtlab/boot.go) rather than a key-management dependency.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("util: reading random bytes for id: " + err.Error())
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10

	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
