package rtp

import (
	"bytes"
	"testing"
)

func TestH264WriterSingleNALUSetsMarkerOnlyOnLast(t *testing.T) {
	s := &recordingSender{}
	w := NewH264Writer(s, 42)

	small := func(n int) []byte {
		b := make([]byte, n)
		b[0] = 0x67 // SPS-shaped header byte, arbitrary for this test
		return b
	}

	nalus := [][]byte{small(10), small(20), small(30)}
	if err := w.SendAccessUnit(nalus); err != nil {
		t.Fatal(err)
	}
	if len(s.headers) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(s.headers))
	}
	for i, hdr := range s.headers {
		marker, _ := splitByte17Local(hdr[1])
		if marker != (i == 2) {
			t.Fatalf("packet %d: marker = %v, want %v", i, marker, i == 2)
		}
	}
}

func TestH264WriterFragmentsLargeNALUAndReassembles(t *testing.T) {
	s := &recordingSender{}
	w := NewH264Writer(s, 1)

	naluType := byte(5) // IDR slice
	fnri := byte(0x60)
	header := fnri | naluType
	body := bytes.Repeat([]byte{0xAA, 0xBB, 0xCC, 0xDD}, 1000) // 4000 bytes, > MTU
	nalu := append([]byte{header}, body...)

	if err := w.SendAccessUnit([][]byte{nalu}); err != nil {
		t.Fatal(err)
	}
	if len(s.payloads) < 2 {
		t.Fatalf("expected NALU to be fragmented into multiple packets, got %d", len(s.payloads))
	}

	var reassembled []byte
	for i, payload := range s.payloads {
		// Strip the default extension block (0xBEDE + len + id/len byte + 2-byte value + 1 padding byte = 8 bytes).
		fu := payload[8:]
		indicator, fuHeader := fu[0], fu[1]
		if indicator&0x1f != naluTypeFUA {
			t.Fatalf("packet %d: indicator type = %d, want %d", i, indicator&0x1f, naluTypeFUA)
		}
		if i == 0 {
			if fuHeader&0x80 == 0 {
				t.Fatal("first fragment must have start bit set")
			}
			reassembled = append(reassembled, fnri|naluType)
		}
		if i == len(s.payloads)-1 && fuHeader&0x40 == 0 {
			t.Fatal("last fragment must have end bit set")
		}
		if i != 0 && i != len(s.payloads)-1 && (fuHeader&0xC0) != 0 {
			t.Fatalf("packet %d: middle fragment must not set start or end bit", i)
		}
		reassembled = append(reassembled, fu[2:]...)
	}

	if !bytes.Equal(reassembled, nalu) {
		t.Fatal("reassembled NALU does not match original")
	}
}

func TestH264WriterAdvancesTimestampByNinetyThousandOverFramerate(t *testing.T) {
	s := &recordingSender{}
	w := NewH264Writer(s, 1)
	w.SetFramerate(30)

	if err := w.SendAccessUnit([][]byte{{0x67, 1, 2}}); err != nil {
		t.Fatal(err)
	}
	if err := w.SendAccessUnit([][]byte{{0x67, 1, 2}}); err != nil {
		t.Fatal(err)
	}

	delta := timestampOf(s.headers[1]) - timestampOf(s.headers[0])
	if delta != 3000 {
		t.Fatalf("timestamp delta = %d, want 3000", delta)
	}
}
