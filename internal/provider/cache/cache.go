package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"etfscraper/internal/provider"
)

// Store keeps rendered pages by key.
type Store interface {
	Get(ctx context.Context, key string) (*provider.Page, bool, error)
	Set(ctx context.Context, key string, page *provider.Page, ttl time.Duration) error
}

// Fetcher caches pages per request for a TTL. Identical requests in flight
// at the same time share one underlying fetch, which a cancelled caller does
// not cancel for the others. Failed fetches are not cached.
type Fetcher struct {
	F     provider.Fetcher
	Store Store
	TTL   time.Duration

	group singleflight.Group
}

// Fetch returns a cached page when one is fresh, otherwise fetches and stores it.
func (c *Fetcher) Fetch(ctx context.Context, req provider.FetchRequest) (*provider.Page, error) {
	if c.Store == nil || c.TTL <= 0 {
		return c.F.Fetch(ctx, req)
	}

	key := Key(req)
	page, ok, err := c.Store.Get(ctx, key)
	if err != nil {
		// A broken store degrades to uncached fetching.
		slog.WarnContext(ctx, "page cache read failed", "key", key, "err", err)
	}
	if ok {
		slog.DebugContext(ctx, "page cache hit", "url", req.URL)
		return page, nil
	}

	// The shared fetch outlives any single caller; each caller stops
	// waiting on its own context. The client bounds the fetch with its
	// own timeout.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		p, err := c.F.Fetch(fetchCtx, req)
		if err != nil {
			return nil, err
		}
		if err := c.Store.Set(fetchCtx, key, p, c.TTL); err != nil {
			slog.WarnContext(fetchCtx, "page cache write failed", "key", key, "err", err)
		}
		return p, nil
	})
	select {
	case <-ctx.Done():
		return nil, &provider.FetchError{URL: req.URL, Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			slog.DebugContext(ctx, "page fetch shared", "url", req.URL)
		}
		return r.Val.(*provider.Page), nil
	}
}

// Key identifies a request: format and URL, plus a hash of the extraction
// schema and prompt for structured requests.
func Key(req provider.FetchRequest) string {
	format := req.Format
	if format == "" {
		format = provider.FormatHTML
	}
	key := "etfpage:" + string(format) + ":" + req.URL
	if format != provider.FormatJSON {
		return key
	}
	h := xxhash.New()
	if req.Schema != nil {
		b, _ := json.Marshal(req.Schema)
		_, _ = h.Write(b)
	}
	_, _ = h.WriteString(req.Prompt)
	return key + ":" + strconv.FormatUint(h.Sum64(), 16)
}
