package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestAwaitEventsMatchesBothPredicatesRegardlessOfOrder(t *testing.T) {
	c := &Client{}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan []dispatchEvent, 1)
	go func() {
		events, err := c.awaitEvents(ctx,
			func(e dispatchEvent) bool { return e.Name == "VOICE_STATE_UPDATE" },
			func(e dispatchEvent) bool { return e.Name == "VOICE_SERVER_UPDATE" },
		)
		if err != nil {
			t.Errorf("awaitEvents: %v", err)
			return
		}
		done <- events
	}()

	// Give the waiter goroutine a moment to register before dispatching, and
	// dispatch out of order (server update before state update) to prove
	// matching is predicate-based, not positional.
	time.Sleep(10 * time.Millisecond)
	c.dispatch(dispatchEvent{Name: "VOICE_SERVER_UPDATE", Data: json.RawMessage(`{"endpoint":"e"}`)})
	c.dispatch(dispatchEvent{Name: "UNRELATED_EVENT"})
	c.dispatch(dispatchEvent{Name: "VOICE_STATE_UPDATE", Data: json.RawMessage(`{"session_id":"s"}`)})

	select {
	case events := <-done:
		if events[0].Name != "VOICE_STATE_UPDATE" || events[1].Name != "VOICE_SERVER_UPDATE" {
			t.Fatalf("unexpected event order in result: %v", events)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for awaitEvents to complete")
	}

	c.waitersMu.Lock()
	remaining := len(c.waiters)
	c.waitersMu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected waiter to be removed once matched, got %d remaining", remaining)
	}
}

func TestAwaitEventsTimesOutWithoutMatch(t *testing.T) {
	c := &Client{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.awaitEvents(ctx, func(e dispatchEvent) bool { return false })
	if err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestNullableString(t *testing.T) {
	if nullableString("") != nil {
		t.Fatal("expected nil for empty string")
	}
	if nullableString("x") != "x" {
		t.Fatal("expected passthrough for non-empty string")
	}
}
