package media

import (
	"io"

	"github.com/lanikai/strawberry/internal/media/h264"
)

// H264Source reads a raw Annex-B H.264 elementary stream from an io.Reader
// (typically an external transcoder's stdout pipe) and emits access units.
// Grounded on the teacher's h264Reader/splitNALU, generalized from
// one-NALU-per-Scan into one-access-unit-per-message via h264.Parser.
type H264Source struct {
	in     io.ReadCloser
	parser *h264.Parser
	units  chan h264.AccessUnit
	err    error
}

const readChunkSize = 64 * 1024

// NewH264Source starts reading from in on a background goroutine. Callers
// must range over AccessUnits() until it closes, then check Err().
func NewH264Source(in io.ReadCloser) *H264Source {
	s := &H264Source{
		in:     in,
		parser: h264.NewParser(),
		units:  make(chan h264.AccessUnit, 16),
	}
	go s.run()
	return s
}

func (s *H264Source) run() {
	defer close(s.units)

	buf := make([]byte, readChunkSize)
	for {
		n, err := s.in.Read(buf)
		if n > 0 {
			for _, au := range s.parser.Write(buf[:n]) {
				s.units <- au
			}
		}
		if err != nil {
			if err != io.EOF {
				s.err = err
			}
			if final := s.parser.Close(); len(final) > 0 {
				s.units <- final
			}
			return
		}
	}
}

// AccessUnits returns the channel of decoded access units. It closes when
// the underlying reader reaches EOF or errors; check Err() afterward.
func (s *H264Source) AccessUnits() <-chan h264.AccessUnit {
	return s.units
}

func (s *H264Source) Err() error {
	return s.err
}

func (s *H264Source) Close() error {
	return s.in.Close()
}
