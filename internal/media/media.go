// Package media wraps the external transcoder's output pipes into the two
// source types the pacer (internal/pacer) consumes: an H.264 access-unit
// source and an Opus packet source. Unlike the teacher's media package,
// which models sources as fan-out broadcasters feeding a WebRTC
// PeerConnection's receivers, these sources have exactly one consumer, so
// each is modeled as a single channel that closes at end-of-stream.
package media

import "github.com/lanikai/strawberry/internal/logging"

var log = logging.DefaultLogger.WithTag("media")

// Source is the common lifecycle shared by H264Source and OpusSource.
type Source interface {
	// Err returns the reason the source's channel closed, or nil on a clean
	// end-of-stream.
	Err() error

	// Close releases any resources held by the source (e.g. the underlying
	// pipe), and is safe to call more than once.
	Close() error
}
