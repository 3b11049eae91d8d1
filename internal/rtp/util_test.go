package rtp

import "testing"

func TestJoinByte2114(t *testing.T) {
	got := joinByte2114(2, true, false, 0x0c)
	want := byte(2<<6 | 0x20 | 0x0c)
	if got != want {
		t.Fatalf("joinByte2114 = %#x, want %#x", got, want)
	}
}

func TestJoinByte17(t *testing.T) {
	got := joinByte17(true, 0x78)
	want := byte(0x80 | 0x78)
	if got != want {
		t.Fatalf("joinByte17 = %#x, want %#x", got, want)
	}
}
