package h264

import (
	"bytes"
	"testing"
)

func annexB(naluType byte, payload []byte) []byte {
	return append([]byte{0, 0, 0, 1, naluType}, payload...)
}

func TestParserFlushesOnAUD(t *testing.T) {
	p := NewParser()

	var stream []byte
	stream = append(stream, annexB(TypeAUD, nil)...)
	stream = append(stream, annexB(7, []byte{0x01, 0x02})...) // SPS
	stream = append(stream, annexB(1, []byte{0xAA})...)       // slice
	stream = append(stream, annexB(TypeAUD, nil)...)          // closes first AU
	stream = append(stream, annexB(1, []byte{0xBB})...)       // slice of 2nd AU

	units := p.Write(stream)
	if len(units) != 1 {
		t.Fatalf("expected 1 completed access unit, got %d", len(units))
	}
	au := units[0]
	if len(au) != 2 {
		t.Fatalf("expected 2 NALUs in access unit, got %d", len(au))
	}
	if NALU(au[0]).Type() != 7 || NALU(au[1]).Type() != 1 {
		t.Fatalf("unexpected NALU types: %d, %d", NALU(au[0]).Type(), NALU(au[1]).Type())
	}

	final := p.Close()
	if len(final) != 1 || NALU(final[0]).Type() != 1 {
		t.Fatalf("expected final access unit with trailing slice NALU, got %v", final)
	}
}

func TestParserHandlesChunkedWrites(t *testing.T) {
	p := NewParser()
	full := append(annexB(TypeAUD, nil), annexB(5, []byte{1, 2, 3, 4})...)
	full = append(full, annexB(TypeAUD, nil)...)
	full = append(full, annexB(1, []byte{0xBB})...) // start code ends the AUD

	var completed []AccessUnit
	for i := 0; i < len(full); i++ {
		completed = append(completed, p.Write(full[i:i+1])...)
	}
	if len(completed) != 1 {
		t.Fatalf("expected exactly one completed access unit across byte-at-a-time writes, got %d", len(completed))
	}
	if len(completed[0]) != 1 || NALU(completed[0][0]).Type() != 5 {
		t.Fatalf("unexpected access unit contents: %v", completed[0])
	}
}

func TestParserAppliesRBSPOnlyToSPSAndSEI(t *testing.T) {
	p := NewParser()
	stream := annexB(TypeAUD, nil)
	// SPS payload containing an emulation-prevention sequence.
	stream = append(stream, annexB(TypeSPS, []byte{0x00, 0x00, 0x03, 0x01})...)
	// Slice payload with the same byte pattern, which must NOT be RBSP-decoded.
	stream = append(stream, annexB(1, []byte{0x00, 0x00, 0x03, 0x01})...)
	stream = append(stream, annexB(TypeAUD, nil)...)
	stream = append(stream, annexB(1, []byte{0xBB})...) // start code ends the AUD

	units := p.Write(stream)
	au := units[0]

	sps := au[0]
	if bytes.Equal(sps[1:], []byte{0x00, 0x00, 0x03, 0x01}) {
		t.Fatal("expected SPS payload to be RBSP-decoded (emulation byte stripped)")
	}
	if !bytes.Equal(sps[1:], []byte{0x00, 0x00, 0x01}) {
		t.Fatalf("unexpected RBSP-decoded SPS payload: %x", sps[1:])
	}

	slice := au[1]
	if !bytes.Equal(slice[1:], []byte{0x00, 0x00, 0x03, 0x01}) {
		t.Fatalf("slice payload should be stored verbatim, got %x", slice[1:])
	}
}
