// Package h264 provides low-level H.264 Annex-B parsing: NAL unit byte
// accessors, RBSP extraction, and an access-unit accumulator that groups NAL
// units the way the platform expects to receive them for packetization.
package h264

// NALU is a single NAL unit, including its one-byte header.
type NALU []byte

func (nalu NALU) ForbiddenBit() byte {
	return nalu[0] & 0x80 >> 7
}

func (nalu NALU) NRI() byte {
	return nalu[0] & 0x60 >> 5
}

func (nalu NALU) Type() byte {
	return nalu[0] & 0x1f
}

// NAL unit types relevant to access-unit assembly and RBSP extraction.
// See https://tools.ietf.org/html/rfc6184#section-5.2
const (
	TypeSEI = 6
	TypeSPS = 7
	TypePPS = 8
	TypeAUD = 9
)

// NeedsRBSP reports whether a NAL unit of this type must have its
// emulation-prevention bytes stripped before being stored (SPS and SEI only,
// per the platform's parser).
func NeedsRBSP(naluType byte) bool {
	return naluType == TypeSPS || naluType == TypeSEI
}

// ExtractRBSP removes emulation-prevention bytes from a NAL unit payload
// (everything after the one-byte NAL header). It scans for the 3-byte
// sequence 00 00 03: if the byte following it is <= 0x03, the 03 is a
// stuffing byte and is dropped; otherwise all three bytes are kept as-is
// (the 00 00 03 wasn't inserted for emulation prevention) and the scan
// continues past it either way.
func ExtractRBSP(payload []byte) []byte {
	out := make([]byte, 0, len(payload))
	i := 0
	for i < len(payload) {
		if i+3 < len(payload) && payload[i] == 0 && payload[i+1] == 0 && payload[i+2] == 3 {
			out = append(out, payload[i], payload[i+1])
			if payload[i+3] > 0x03 {
				out = append(out, payload[i+2])
			}
			i += 3
			continue
		}
		out = append(out, payload[i])
		i++
	}
	return out
}
