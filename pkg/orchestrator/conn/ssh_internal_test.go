package conn

import "testing"

func TestTrailingWindow(t *testing.T) {
	short := []byte("router#")
	if got := trailingWindow(short); string(got) != "router#" {
		t.Errorf("trailingWindow(short) = %q, want unchanged", got)
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	copy(long[294:], []byte("R1#"))
	got := trailingWindow(long)
	if len(got) != 256 {
		t.Fatalf("trailingWindow(long) len = %d, want 256", len(got))
	}
	if string(got[len(got)-3:]) != "R1#" {
		t.Errorf("trailingWindow dropped the tail: %q", got[len(got)-3:])
	}
}
