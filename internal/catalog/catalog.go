// Package catalog assembles the fetch stack and the provider extractors
// from configuration.
package catalog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"etfscraper/internal/aggregate"
	"etfscraper/internal/config"
	"etfscraper/internal/httpx"
	"etfscraper/internal/provider"
	"etfscraper/internal/provider/amundi"
	"etfscraper/internal/provider/cache"
	"etfscraper/internal/provider/etfsite"
	"etfscraper/internal/provider/ishares"
	"etfscraper/internal/provider/ratelimit"
	"etfscraper/internal/provider/vanguard"
	"etfscraper/internal/provider/xtrackers"
	"etfscraper/internal/scrapeapi"
)

// Names lists the providers in run order.
var Names = []string{amundi.Name, ishares.Name, vanguard.Name, xtrackers.Name}

var constructors = map[string]func(etfsite.Options, provider.Fetcher) *etfsite.Extractor{
	amundi.Name:    amundi.New,
	ishares.Name:   ishares.New,
	vanguard.Name:  vanguard.New,
	xtrackers.Name: xtrackers.New,
}

// NewFetcher builds the scraping client and wraps it with pacing and the
// page cache as configured. The returned func releases the cache connection.
func NewFetcher(cfg config.Config) (provider.Fetcher, func(), error) {
	sc := cfg.Scraper
	client, err := scrapeapi.New(sc.APIKey,
		scrapeapi.WithBaseURL(sc.Endpoint),
		scrapeapi.WithHTTPClient(httpx.New(sc.Timeout()+15*time.Second)),
		scrapeapi.WithUserAgent(sc.UserAgent),
		scrapeapi.WithTimeout(sc.Timeout()),
		scrapeapi.WithRetries(sc.Retries),
		scrapeapi.WithBackoff(sc.RetryBackoff()),
	)
	if err != nil {
		return nil, nil, &config.Error{Key: "scraper.api_key", Err: err}
	}

	var f provider.Fetcher = client
	if sc.MaxRequestsPerMinute > 0 {
		f = &ratelimit.Fetcher{F: f, L: ratelimit.PerMinute(sc.MaxRequestsPerMinute, sc.Burst)}
	} else if sc.MinRequestIntervalSec > 0 {
		f = &ratelimit.Fetcher{F: f, L: ratelimit.MinInterval(time.Duration(sc.MinRequestIntervalSec) * time.Second)}
	}
	if sc.BatchSize > 0 && sc.BatchPauseSec > 0 {
		f = &ratelimit.Batch{F: f, Size: sc.BatchSize, Pause: time.Duration(sc.BatchPauseSec) * time.Second}
	}

	closer := func() {}
	if sc.CacheTTLSeconds > 0 {
		ttl := time.Duration(sc.CacheTTLSeconds) * time.Second
		var store cache.Store
		if sc.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: sc.RedisAddr})
			store = cache.NewRedisStore(rdb)
			closer = func() { _ = rdb.Close() }
		} else {
			mem := cache.NewMemoryStore(sc.CacheMaxItems, ttl)
			store = mem
			closer = func() { slog.Debug("page cache released", "entries", mem.Len()) }
		}
		f = &cache.Fetcher{F: f, Store: store, TTL: ttl}
	}
	return f, closer, nil
}

// Build returns the extractors for names in run order. Empty names selects
// every enabled provider; names given explicitly run even when disabled.
// Aliases such as "DWS" are accepted.
func Build(cfg config.Config, f provider.Fetcher, names []string) ([]provider.Extractor, error) {
	want := map[string]bool{}
	for _, n := range names {
		canon := aggregate.NormalizeProvider(n)
		if canon == "" {
			return nil, &config.Error{Key: "providers", Err: fmt.Errorf("unknown provider %q", n)}
		}
		want[canon] = true
	}

	var out []provider.Extractor
	for _, name := range Names {
		pc := cfg.Provider(name)
		if len(want) > 0 && !want[name] {
			continue
		}
		if len(want) == 0 && !pc.On() {
			continue
		}
		out = append(out, constructors[name](Options(*pc), f))
	}
	return out, nil
}

// Options converts provider settings to extractor options.
func Options(pc config.Provider) etfsite.Options {
	mode := provider.FormatHTML
	if pc.DetailMode == config.DetailJSON {
		mode = provider.FormatJSON
	}
	return etfsite.Options{ListingURL: pc.ListingURL, MaxDetails: pc.MaxDetails, DetailMode: mode}
}
