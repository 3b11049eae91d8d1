package h264

import "bytes"

// startCode3 is the 3-byte Annex-B start code; findStartCode also recognizes
// the 4-byte form, which is the same pattern preceded by a zero byte.
var (
	startCode3 = []byte{0, 0, 1}
)

// AccessUnit is an ordered group of NAL units that belong to the same coded
// picture, as delimited by Access Unit Delimiter (type 9) NAL units.
type AccessUnit [][]byte

// Parser accumulates raw Annex-B bytes across chunk boundaries and emits
// complete access units. It is grounded on the teacher's
// internal/media.splitNALU bufio.SplitFunc, generalized from "one NALU per
// Scan()" into "one access unit per flush", since the platform groups NAL
// units by AUD the way the original source's H264NalPacketIterator does.
//
// A Parser is not safe for concurrent use; construct one per source.
type Parser struct {
	buf     []byte
	current AccessUnit
}

// NewParser returns a Parser ready to accept chunks via Write.
func NewParser() *Parser {
	return &Parser{}
}

// Write appends a chunk of raw Annex-B bytes, extracts any complete NAL
// units it now contains, and returns any access units that were completed
// (flushed on encountering an Access Unit Delimiter). The final access unit
// of a stream is never returned by Write; call Close once the source ends.
// An Access Unit Delimiter only takes effect once the start code that
// follows it has been written.
func (p *Parser) Write(chunk []byte) []AccessUnit {
	p.buf = append(p.buf, chunk...)

	var completed []AccessUnit
	for {
		nalu, rest, ok := nextNALU(p.buf)
		if !ok {
			break
		}
		p.buf = rest

		if len(nalu) == 0 {
			continue
		}
		naluType := NALU(nalu).Type()
		if naluType == TypeAUD {
			if len(p.current) > 0 {
				completed = append(completed, p.current)
				p.current = nil
			}
			continue
		}
		if NeedsRBSP(naluType) {
			nalu = append([]byte{nalu[0]}, ExtractRBSP(nalu[1:])...)
		}
		p.current = append(p.current, nalu)
	}
	return completed
}

// Close extracts any final NAL unit left in the internal buffer (which Write
// holds back until a subsequent start code confirms its end) and returns the
// resulting access unit. Callers must invoke this once the underlying
// source reaches end-of-stream, since the final NAL unit and access unit of
// a stream have no trailing delimiter to trigger their own flush.
func (p *Parser) Close() AccessUnit {
	if start, startLen := findStartCode(p.buf); start != -1 {
		nalu := p.buf[start+startLen:]
		if len(nalu) > 0 {
			naluType := NALU(nalu).Type()
			if naluType != TypeAUD {
				if NeedsRBSP(naluType) {
					nalu = append([]byte{nalu[0]}, ExtractRBSP(nalu[1:])...)
				}
				p.current = append(p.current, nalu)
			}
		}
	}
	p.buf = nil
	return p.Flush()
}

// Flush returns the access unit accumulated so far, if any, and resets the
// accumulator.
func (p *Parser) Flush() AccessUnit {
	if len(p.current) == 0 {
		return nil
	}
	au := p.current
	p.current = nil
	return au
}

// nextNALU extracts the next complete NAL unit (delimited by a start code on
// both ends) from buf. ok is false if no further complete NAL unit is
// available yet (more data is needed).
func nextNALU(buf []byte) (nalu, rest []byte, ok bool) {
	start, startLen := findStartCode(buf)
	if start == -1 {
		return nil, buf, false
	}
	searchFrom := start + startLen
	next, nextLen := findStartCode(buf[searchFrom:])
	if next == -1 {
		// No further start code yet; wait for more data. The last NALU of
		// a finished stream is extracted by Close, not here -- Write always
		// waits for a delimiter.
		return nil, buf, false
	}
	nalu = buf[searchFrom : searchFrom+next]
	rest = buf[searchFrom+next:]
	_ = nextLen
	return nalu, rest, true
}

// findStartCode locates the first 3- or 4-byte Annex-B start code in buf,
// returning its offset and length (3 or 4). Returns -1 if none is found.
func findStartCode(buf []byte) (offset, length int) {
	i := bytes.Index(buf, startCode3)
	if i == -1 {
		return -1, 0
	}
	if i > 0 && buf[i-1] == 0 {
		return i - 1, 4
	}
	return i, 3
}
