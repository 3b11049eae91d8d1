package rtp

// H.264 RTP packetization, per RFC 6184. Grounded on the teacher's
// h264Writer.packetize (single-NALU vs FU-A fragmentation), generalized to
// this platform's fixed MTU and timestamp cadence instead of WebRTC's
// SDP-negotiated values.

import (
	"github.com/lanikai/strawberry/internal/packet"
)

const (
	// H264PayloadType is the payload type number the platform expects for
	// H.264 video packets.
	H264PayloadType = 0x65

	// MTU is the largest NAL unit this client sends as a single packet;
	// larger NAL units are split into FU-A fragments. The header extension
	// block is not counted against it.
	MTU = 1200

	// fuChunkSize is the amount of NALU payload carried per FU-A fragment.
	// It reserves 12 bytes of MTU for the header extension block plus the
	// 2-byte FU indicator/header pair, per the REDESIGN FLAG correcting the
	// original implementation's inconsistent MTU accounting.
	fuChunkSize = MTU - 12

	naluTypeFUA = 28
)

// DefaultFramerate is the frame rate used to derive the 90kHz timestamp
// advance when the caller does not override it.
const DefaultFramerate = 30

// H264Writer packetizes H.264 access units (ordered groups of NAL units)
// into RTP packets, fragmenting any NALU larger than MTU into FU-A chunks.
// Extensions are always enabled for video.
type H264Writer struct {
	*baseWriter

	// timestampStep is 90000/fps, recomputed whenever SetFramerate is called.
	timestampStep uint32
}

// NewH264Writer constructs a packetizer bound to the given SSRC, using
// DefaultFramerate until SetFramerate is called (typically once the video
// source's actual frame rate is known).
func NewH264Writer(sender Sender, ssrc uint32) *H264Writer {
	w := &H264Writer{baseWriter: newBaseWriter(sender, ssrc, H264PayloadType, true)}
	w.SetFramerate(DefaultFramerate)
	return w
}

// SetFramerate updates the timestamp advance applied after each access unit.
func (w *H264Writer) SetFramerate(fps int) {
	w.timestampStep = uint32((90000 + fps/2) / fps)
}

// SendAccessUnit packetizes every NAL unit in the access unit, in order, and
// advances the timestamp once the whole access unit has been sent. The
// marker bit is set only on the very last packet of the very last NALU.
func (w *H264Writer) SendAccessUnit(nalus [][]byte) error {
	defer func() { w.timestamp += w.timestampStep }()

	for i, nalu := range nalus {
		isLastNALU := i == len(nalus)-1
		if err := w.sendNALU(nalu, isLastNALU); err != nil {
			return err
		}
	}
	return nil
}

func (w *H264Writer) sendNALU(nalu []byte, isLastNALU bool) error {
	if len(nalu) == 0 {
		return nil
	}
	if len(nalu) <= MTU {
		return w.writePacket(isLastNALU, w.timestamp, nalu)
	}
	return w.fragmentNALU(nalu, isLastNALU)
}

// fragmentNALU splits a NALU into FU-A fragments, per RFC 6184 section 5.8.
func (w *H264Writer) fragmentNALU(nalu []byte, isLastNALU bool) error {
	naluHeader := nalu[0]
	naluType := naluHeader & 0x1f
	fnri := naluHeader & 0xe0
	indicator := fnri | naluTypeFUA

	body := nalu[1:]
	p := packet.NewWriterSize(fuChunkSize + 2)

	for offset := 0; offset < len(body); offset += fuChunkSize {
		end := offset + fuChunkSize
		if end > len(body) {
			end = len(body)
		}
		isFirst := offset == 0
		isLast := end == len(body)

		var fuHeader byte
		switch {
		case isFirst:
			fuHeader = 0x80 | naluType
		case isLast:
			fuHeader = 0x40 | naluType
		default:
			fuHeader = naluType
		}

		p.Reset()
		p.WriteByte(indicator)
		p.WriteByte(fuHeader)
		if err := p.WriteSlice(body[offset:end]); err != nil {
			return err
		}

		marker := isLast && isLastNALU
		if err := w.writePacket(marker, w.timestamp, p.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
