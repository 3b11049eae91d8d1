package rtp

// OpusPayloadType is the payload type number the platform expects for Opus
// audio packets.
const OpusPayloadType = 0x78

// opusTimestampStep is the timestamp advance for the 20ms frame size this
// client always uses, at the 48kHz RTP clock rate (48000/1000*20 = 960
// samples per frame).
const opusTimestampStep = 48000 / 1000 * 20

// OpusWriter packetizes pre-encoded Opus frames, one RTP packet per frame.
// Extensions are never enabled for audio, and the marker bit is always set,
// mirroring the teacher's AudioPacketizer.
type OpusWriter struct {
	*baseWriter
}

// NewOpusWriter constructs a packetizer bound to the given SSRC. sender is
// typically an *internal/transport.Conn.
func NewOpusWriter(sender Sender, ssrc uint32) *OpusWriter {
	return &OpusWriter{newBaseWriter(sender, ssrc, OpusPayloadType, false)}
}

// SendFrame packetizes and sends a single Opus frame, then advances the
// timestamp by one frame's worth of samples (960 at 48kHz for a 20ms frame).
func (w *OpusWriter) SendFrame(frame []byte) error {
	if err := w.writePacket(true, w.timestamp, frame); err != nil {
		return err
	}
	w.timestamp += opusTimestampStep
	return nil
}
