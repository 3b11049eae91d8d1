package media

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/lanikai/strawberry/internal/media/h264"
)

type readCloser struct {
	io.Reader
}

func (readCloser) Close() error { return nil }

func TestH264SourceEmitsAccessUnitsAndClosesOnEOF(t *testing.T) {
	var stream []byte
	stream = append(stream, 0, 0, 0, 1, h264.TypeAUD)
	stream = append(stream, 0, 0, 0, 1, 7, 0xAA) // SPS
	stream = append(stream, 0, 0, 0, 1, 1, 0xBB) // slice
	stream = append(stream, 0, 0, 0, 1, h264.TypeAUD)
	stream = append(stream, 0, 0, 0, 1, 1, 0xCC) // slice of 2nd AU

	src := NewH264Source(readCloser{bytes.NewReader(stream)})

	done := make(chan []h264.AccessUnit, 1)
	go func() {
		var got []h264.AccessUnit
		for au := range src.AccessUnits() {
			got = append(got, au)
		}
		done <- got
	}()

	var got []h264.AccessUnit
	select {
	case got = <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for access units")
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 access units, got %d", len(got))
	}
	if len(got[0]) != 2 || len(got[1]) != 1 {
		t.Fatalf("unexpected access unit shapes: %v", got)
	}
	if src.Err() != nil {
		t.Fatalf("expected nil Err() on clean EOF, got %v", src.Err())
	}
}

func TestH264SourcePropagatesReadError(t *testing.T) {
	r, w := io.Pipe()
	src := NewH264Source(readCloser{r})
	boom := io.ErrClosedPipe
	w.CloseWithError(boom)

	for range src.AccessUnits() {
	}
	if src.Err() != boom {
		t.Fatalf("expected propagated error %v, got %v", boom, src.Err())
	}
}
