package media

import (
	"io"

	"github.com/lanikai/strawberry/internal/errs"
)

// oggPageHeaderSize is the fixed portion of an Ogg page header: 4-byte magic
// "OggS", 1-byte stream structure version, 1-byte header type flag, 8-byte
// granule position, 4-byte serial number, 4-byte page sequence number,
// 4-byte CRC checksum, and 1-byte segment count. The segment table (one byte
// per segment) follows.
const oggPageHeaderSize = 27

var oggMagic = [4]byte{'O', 'g', 'g', 'S'}

// oggPage is one demuxed Ogg page: its segment table and the concatenation
// of all of its segment data.
type oggPage struct {
	segmentTable []byte
	data         []byte
}

// readOggPage reads one Ogg page from r, starting immediately after its
// "OggS" capture pattern has already been consumed by the caller.
func readOggPage(r io.Reader) (*oggPage, error) {
	var fixed [oggPageHeaderSize - 4]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}
	segnum := fixed[22]

	segtable := make([]byte, segnum)
	if _, err := io.ReadFull(r, segtable); err != nil {
		return nil, err
	}

	var total int
	for _, seg := range segtable {
		total += int(seg)
	}
	data := make([]byte, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	return &oggPage{segmentTable: segtable, data: data}, nil
}

// packets splits a page's data into lacing-delimited packet fragments. Each
// fragment is paired with whether it completes the packet it belongs to (a
// lacing value other than 0xFF ends the packet; a run of 0xFF segments means
// the packet continues onto the next page).
func (p *oggPage) packets() (fragments [][]byte, complete []bool) {
	packetLen, offset := 0, 0
	partial := true

	for _, seg := range p.segmentTable {
		if seg == 0xFF {
			packetLen += 0xFF
			partial = true
			continue
		}
		packetLen += int(seg)
		fragments = append(fragments, p.data[offset:offset+packetLen])
		complete = append(complete, true)
		offset += packetLen
		packetLen = 0
		partial = false
	}

	if partial {
		fragments = append(fragments, p.data[offset:])
		complete = append(complete, false)
	}
	return fragments, complete
}

// OpusSource demuxes an Ogg/Opus elementary stream (the output format
// produced by the platform's ffmpeg transcode, per the original source's
// AudioSource) from an io.Reader and emits complete Opus packets. Grounded
// on the original Python OggStream/OggPage: a 4-byte "OggS" capture pattern
// precedes each page; packets may span multiple pages via 0xFF-lacing.
type OpusSource struct {
	in      io.ReadCloser
	packets chan []byte
	err     error
}

// NewOpusSource starts demuxing in on a background goroutine. Callers must
// range over Packets() until it closes, then check Err().
func NewOpusSource(in io.ReadCloser) *OpusSource {
	s := &OpusSource{
		in:      in,
		packets: make(chan []byte, 64),
	}
	go s.run()
	return s
}

func (s *OpusSource) run() {
	defer close(s.packets)

	var buffer []byte
	var magic [4]byte
	for {
		if _, err := io.ReadFull(s.in, magic[:]); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.err = err
			}
			return
		}
		if magic != oggMagic {
			s.err = errs.New(errs.ProtocolError, "opus source: expected Ogg capture pattern, got %x", magic)
			return
		}

		page, err := readOggPage(s.in)
		if err != nil {
			if err != io.EOF {
				s.err = errs.Wrap(errs.SourceError, err, "opus source: reading Ogg page")
			}
			return
		}

		fragments, complete := page.packets()
		for i, frag := range fragments {
			buffer = append(buffer, frag...)
			if complete[i] {
				s.packets <- buffer
				buffer = nil
			}
		}
	}
}

// Packets returns the channel of demuxed Opus packets. It closes when the
// underlying reader reaches EOF or errors; check Err() afterward.
func (s *OpusSource) Packets() <-chan []byte {
	return s.packets
}

func (s *OpusSource) Err() error {
	return s.err
}

func (s *OpusSource) Close() error {
	return s.in.Close()
}
