// Package pacer drives media sources at real-time speed: one goroutine per
// source reads from its channel and sends each item no faster than the
// source's expected cadence (20ms for Opus, 1/fps for H.264), so the
// platform's jitter buffer sees packets arriving roughly evenly spaced
// rather than in a burst. Grounded on the teacher's internal/rtp.SendVideo
// select-loop (quit channel + receiver channel), generalized from "pace off
// of a network-backed receiver" into "actively throttle a locally produced
// source to real time," since media here is generated by an external
// transcoder rather than received over the wire.
package pacer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lanikai/strawberry/internal/errs"
	"github.com/lanikai/strawberry/internal/logging"
	"github.com/lanikai/strawberry/internal/media/h264"
)

var log = logging.DefaultLogger.WithTag("pacer")

// lagThreshold is how far behind schedule the pacer may drift before it logs
// a LagWarning. Lag is observable, never fatal (see SPEC_FULL.md §7).
const lagThreshold = time.Second

// Pause is a level-triggered signal that pacer loops honor: while set, a
// pacer neither drains its source nor sends, and the held wall-clock time is
// excluded from the catch-up schedule. The zero value is "not paused".
type Pause struct {
	held int32
}

// Set raises or lowers the pause signal.
func (p *Pause) Set(paused bool) {
	v := int32(0)
	if paused {
		v = 1
	}
	atomic.StoreInt32(&p.held, v)
}

func (p *Pause) isSet() bool {
	return p != nil && atomic.LoadInt32(&p.held) == 1
}

// schedule tracks the lazily-started real-time baseline shared by both
// RunOpus and RunH264, so their pacing arithmetic can't drift apart.
type schedule struct {
	start  time.Time
	paused time.Duration
	index  int
}

// waitForUnpause blocks while pause is set, polling at a coarse interval,
// and accumulates the held duration so it can be excluded from the
// schedule's catch-up math. Returns ctx.Err() if ctx is cancelled first.
func waitForUnpause(ctx context.Context, pause *Pause, s *schedule) error {
	if !pause.isSet() {
		return nil
	}
	t0 := time.Now()
	defer func() { s.paused += time.Since(t0) }()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for pause.isSet() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// pace blocks, if necessary, until it is time to send the item at position
// s.index, then advances s.index. It must be called once per item,
// immediately before handing that item to send.
func (s *schedule) pace(ctx context.Context, interval time.Duration) error {
	if s.start.IsZero() {
		s.start = time.Now()
	}

	deadline := s.start.Add(time.Duration(s.index)*interval - s.paused)
	s.index++

	now := time.Now()
	if now.After(deadline.Add(lagThreshold)) {
		log.Warn("%v", errs.New(errs.LagWarning, "pacer lagging by %s", now.Sub(deadline)))
	}

	if wait := deadline.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// RunOpus drains packets from items at 20ms cadence, calling send for each.
// Returns nil when items closes, ctx.Err() if ctx is cancelled, or whatever
// send returns.
func RunOpus(ctx context.Context, items <-chan []byte, pause *Pause, send func([]byte) error) error {
	const interval = 20 * time.Millisecond
	var s schedule

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet, ok := <-items:
			if !ok {
				return nil
			}
			if err := waitForUnpause(ctx, pause, &s); err != nil {
				return err
			}
			if err := s.pace(ctx, interval); err != nil {
				return err
			}
			if err := send(packet); err != nil {
				return err
			}
		}
	}
}

// RunH264 drains access units from items at 1/fps cadence, calling send for
// each.
func RunH264(ctx context.Context, items <-chan h264.AccessUnit, fps int, pause *Pause, send func(h264.AccessUnit) error) error {
	interval := time.Second / time.Duration(fps)
	var s schedule

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case au, ok := <-items:
			if !ok {
				return nil
			}
			if err := waitForUnpause(ctx, pause, &s); err != nil {
				return err
			}
			if err := s.pace(ctx, interval); err != nil {
				return err
			}
			if err := send(au); err != nil {
				return err
			}
		}
	}
}
