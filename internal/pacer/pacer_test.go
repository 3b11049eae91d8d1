package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/lanikai/strawberry/internal/media/h264"
)

func TestRunOpusSendsEveryItemAndClosesOnChannelClose(t *testing.T) {
	items := make(chan []byte, 4)
	items <- []byte{1}
	items <- []byte{2}
	items <- []byte{3}
	close(items)

	var got [][]byte
	err := RunOpus(context.Background(), items, nil, func(p []byte) error {
		got = append(got, p)
		return nil
	})
	if err != nil {
		t.Fatalf("RunOpus returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(got))
	}
}

func TestRunOpusPropagatesSendError(t *testing.T) {
	items := make(chan []byte, 1)
	items <- []byte{1}

	boom := context.Canceled
	err := RunOpus(context.Background(), items, nil, func(p []byte) error {
		return boom
	})
	if err != boom {
		t.Fatalf("expected propagated send error, got %v", err)
	}
}

func TestRunOpusHonorsContextCancellation(t *testing.T) {
	items := make(chan []byte)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunOpus(ctx, items, nil, func(p []byte) error {
		t.Fatal("send should never be called")
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunH264SendsAccessUnits(t *testing.T) {
	items := make(chan h264.AccessUnit, 2)
	items <- h264.AccessUnit{{0x67}}
	items <- h264.AccessUnit{{0x41}}
	close(items)

	var count int
	err := RunH264(context.Background(), items, 30, nil, func(au h264.AccessUnit) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("RunH264 returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 access units sent, got %d", count)
	}
}

func TestRunOpusWaitsForPauseToClear(t *testing.T) {
	pause := &Pause{}
	pause.Set(true)

	items := make(chan []byte, 1)
	items <- []byte{1}

	unblocked := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		pause.Set(false)
		close(unblocked)
	}()

	start := time.Now()
	err := RunOpus(context.Background(), items, pause, func(p []byte) error {
		return nil
	})
	if err != nil {
		t.Fatalf("RunOpus returned error: %v", err)
	}
	<-unblocked
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("expected RunOpus to wait for pause to clear before sending")
	}
}
