package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"etfscraper/internal/provider"
)

// Fetcher wraps a fetcher and gates calls through a token bucket.
// Concurrent calls wait for a token or return early if the context is canceled.
type Fetcher struct {
	F provider.Fetcher
	L *rate.Limiter
}

func (f *Fetcher) Fetch(ctx context.Context, req provider.FetchRequest) (*provider.Page, error) {
	if f.L != nil {
		if err := f.L.Wait(ctx); err != nil {
			return nil, &provider.FetchError{URL: req.URL, Err: fmt.Errorf("waiting for rate limiter: %w", err)}
		}
	}
	return f.F.Fetch(ctx, req)
}

// PerMinute allows rpm requests per minute after an initial burst.
func PerMinute(rpm, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// MinInterval spaces requests at least d apart.
func MinInterval(d time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(d), 1)
}

// Batch pauses for Pause after every Size fetches.
type Batch struct {
	F     provider.Fetcher
	Size  int
	Pause time.Duration

	mu     sync.Mutex
	n      int
	resume time.Time
}

func (b *Batch) Fetch(ctx context.Context, req provider.FetchRequest) (*provider.Page, error) {
	if b.Size > 0 && b.Pause > 0 {
		b.mu.Lock()
		if b.n > 0 && b.n%b.Size == 0 {
			b.resume = time.Now().Add(b.Pause)
			slog.InfoContext(ctx, "batch complete, pausing", "fetched", b.n, "pause", b.Pause)
		}
		b.n++
		wait := time.Until(b.resume)
		b.mu.Unlock()
		if wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return nil, &provider.FetchError{URL: req.URL, Err: fmt.Errorf("waiting for batch pause: %w", ctx.Err())}
			case <-t.C:
			}
		}
	}
	return b.F.Fetch(ctx, req)
}
