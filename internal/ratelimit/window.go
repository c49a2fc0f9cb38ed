// Package ratelimit bounds outbound provider calls within a fixed time
// window. Providers with windowed quotas (calls per minute) share one Window
// per provider instance; providers with simple request-rate quotas use
// golang.org/x/time/rate instead.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is a fixed-window call counter. Before each outbound call the owner
// calls Wait: if the window has elapsed it resets, and if the call budget is
// exhausted Wait blocks until the window elapses. The counter increments on
// every call regardless of the call's outcome.
type Window struct {
	mu          sync.Mutex
	maxRequests int
	length      time.Duration
	windowStart time.Time
	count       int

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewWindow returns a limiter allowing maxRequests calls per length.
// A maxRequests of zero or less disables limiting.
func NewWindow(maxRequests int, length time.Duration) *Window {
	return &Window{
		maxRequests: maxRequests,
		length:      length,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until the next call is permitted, then records it. It returns
// early with the context's error if ctx is cancelled while blocked.
func (w *Window) Wait(ctx context.Context) error {
	if w.maxRequests <= 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= w.length {
		w.windowStart = now
		w.count = 0
	}

	if w.count >= w.maxRequests {
		remaining := w.length - now.Sub(w.windowStart)
		if remaining > 0 {
			if err := w.sleep(ctx, remaining); err != nil {
				return err
			}
		}
		w.windowStart = w.now()
		w.count = 0
	}

	w.count++
	return nil
}
