// Package rtp packetizes Opus and H.264 media into RTP (RFC 3550) packets
// for transmission to the platform's voice media server. Unlike the
// teacher's bidirectional, SDP-negotiated RTP session (which this package
// originally implemented alongside SRTP/RTCP), this is a send-only
// packetizer: there is exactly one payload type per stream, the SSRC is
// fixed at construction, and encryption is performed by the caller (see
// internal/crypto) rather than folded into the writer.
package rtp

import (
	"sync"

	"github.com/lanikai/strawberry/internal/packet"
)

const (
	rtpVersion = 2

	// headerSize is the fixed 12-byte RTP header (no CSRC, which this client
	// never uses).
	headerSize = 12

	// extensionMagic identifies a one-byte-header extension profile.
	// See RFC 5285 section 4.2.
	extensionMagic = 0xBEDE
)

// header is the fixed 12-byte RTP header.
// See https://tools.ietf.org/html/rfc3550#section-5.1
//
//	0                   1                   2                   3
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|V=2|P|X|  CC   |M|     PT      |       sequence number        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           timestamp                           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|           synchronization source (SSRC) identifier           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type header struct {
	extension   bool
	marker      bool
	payloadType byte
	sequence    uint16
	timestamp   uint32
	ssrc        uint32
}

func (h *header) writeTo(w *packet.Writer) {
	w.WriteByte(joinByte2114(rtpVersion, false, h.extension, 0))
	w.WriteByte(joinByte17(h.marker, h.payloadType))
	w.WriteUint16(h.sequence)
	w.WriteUint32(h.timestamp)
	w.WriteUint32(h.ssrc)
}

// Extension is a single RFC 5285 one-byte-header extension element.
type Extension struct {
	ID    byte
	Value []byte
}

// writeExtension writes the 0xBEDE profile block followed by each packed
// extension. Per RFC 5285 section 4.2, each element is one ID/length byte
// (high nibble ID, low nibble length-1) followed by its value. The 16-bit
// length field carries the number of extension entries, matching the
// original source's get_header_extension (struct.pack_into(">H", profile,
// 2, len(extensions_enabled))).
func writeExtension(w *packet.Writer, exts []Extension) {
	w.WriteUint16(extensionMagic)
	w.WriteUint16(uint16(len(exts)))

	for _, e := range exts {
		w.WriteByte((e.ID&0x0f)<<4 | (byte(len(e.Value)-1) & 0x0f))
		w.WriteSlice(e.Value)
	}
	w.Align(4)
}

// DefaultExtension is the single extension element this client sends when a
// packetizer has extensions enabled: id=5, a 2-byte zero value. The platform
// does not interpret its contents; it is carried for wire compatibility with
// clients that do.
var DefaultExtension = Extension{ID: 5, Value: []byte{0, 0}}

// baseWriter holds the state shared by the Opus and H.264 packetizers:
// sequence/timestamp bookkeeping and the encrypt-then-send hook.
type baseWriter struct {
	sender Sender
	ssrc   uint32

	payloadType byte
	extensions  bool

	sequence  uint16
	timestamp uint32

	buf []byte

	mu sync.Mutex
}

// Sender is the narrow interface packetizers use to hand off finished
// packets. It is implemented by internal/transport.Conn, which owns both the
// UDP socket and the crypto.Context -- see SPEC_FULL.md §9 on resolving the
// packetizer/transport reference cycle.
type Sender interface {
	Send(header, payload []byte) error
}

func newBaseWriter(sender Sender, ssrc uint32, payloadType byte, extensions bool) *baseWriter {
	return &baseWriter{
		sender:      sender,
		ssrc:        ssrc,
		payloadType: payloadType,
		extensions:  extensions,
		// sequence starts at 0 so the first nextSequence() call returns 1,
		// matching the original source's get_new_sequence (self.sequence =
		// 0, incremented before use).
		sequence: 0,
		buf:      make([]byte, 1500),
	}
}

// nextSequence increments and returns the sequence number to use for the
// next packet. The first call after construction returns 1.
func (w *baseWriter) nextSequence() uint16 {
	w.sequence++
	return w.sequence
}

// writePacket builds one RTP packet and hands it to the Sender. When the
// packetizer has extensions enabled (H.264 always does; Opus never does),
// DefaultExtension is written ahead of payload.
func (w *baseWriter) writePacket(marker bool, timestamp uint32, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hdr := header{
		extension:   w.extensions,
		marker:      marker,
		payloadType: w.payloadType,
		sequence:    w.nextSequence(),
		timestamp:   timestamp,
		ssrc:        w.ssrc,
	}

	p := packet.NewWriter(w.buf)
	hdr.writeTo(p)
	headerBytes := append([]byte(nil), p.Bytes()...)

	if w.extensions {
		writeExtension(p, []Extension{DefaultExtension})
	}
	extBytes := append([]byte(nil), p.Bytes()[len(headerBytes):]...)

	return w.sender.Send(headerBytes, append(extBytes, payload...))
}
