package util

import (
	"regexp"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestNewIDLooksLikeUUIDv4(t *testing.T) {
	id := NewID()
	if !uuidPattern.MatchString(id) {
		t.Errorf("NewID() = %q, does not match UUIDv4 shape", id)
	}
}

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced a duplicate: %s", id)
		}
		seen[id] = true
	}
}
