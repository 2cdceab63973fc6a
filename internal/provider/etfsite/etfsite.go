// Package etfsite implements the extractor shared by all fund providers: read
// the provider's listing page into one record per fund, then optionally
// enrich the first funds from their product pages.
package etfsite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"etfscraper/internal/extract"
	"etfscraper/internal/provider"
)

// ErrNoRows is returned when the listing page has no row matching the schema.
var ErrNoRows = errors.New("no rows matched the listing schema")

// Options are the per-run settings of a provider.
type Options struct {
	ListingURL string
	// MaxDetails is how many product pages to enrich. Zero disables enrichment.
	MaxDetails int
	// DetailMode selects rendered HTML or structured extraction for product pages.
	DetailMode provider.Format
}

// Config describes one provider site. It is built once and not modified.
type Config struct {
	Name    string
	Listing extract.Schema
	Detail  extract.Schema
	// Prompt guides structured extraction of product pages.
	Prompt string
	// ListingActions run in the browser before the listing is captured.
	ListingActions []provider.Action
	DetailActions  []provider.Action
	// ResolveLink rewrites an absolute product link before it is fetched.
	ResolveLink func(string) string

	Options
}

// Extractor reads one provider.
type Extractor struct {
	cfg Config
	f   provider.Fetcher
}

// New binds a site configuration to a fetcher.
func New(cfg Config, f provider.Fetcher) *Extractor {
	if cfg.DetailMode == "" {
		cfg.DetailMode = provider.FormatHTML
	}
	return &Extractor{cfg: cfg, f: f}
}

func (e *Extractor) Name() string { return e.cfg.Name }

// Config returns the site configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Fields lists the keys every record of this extractor carries.
func (e *Extractor) Fields() []string {
	out := e.cfg.Listing.Fields()
	if !e.enrich() {
		return out
	}
	for _, f := range e.cfg.Detail.Fields() {
		if !contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func (e *Extractor) enrich() bool {
	return e.cfg.MaxDetails > 0 && len(e.cfg.Detail.Rules) > 0
}

// Extract fetches the listing and returns its records. A failed listing fetch
// is a *provider.FetchError; a listing without rows is a
// *provider.ExtractionError. Product page failures only leave nulls behind.
func (e *Extractor) Extract(ctx context.Context) ([]provider.Record, error) {
	start := time.Now()
	listing := extract.Extractor{Provider: e.cfg.Name, Schema: e.cfg.Listing}

	page, err := e.f.Fetch(ctx, provider.FetchRequest{
		URL:     e.cfg.ListingURL,
		Format:  provider.FormatHTML,
		Actions: e.cfg.ListingActions,
	})
	if err != nil {
		return nil, fmt.Errorf("%s listing: %w", e.cfg.Name, err)
	}
	res, err := listing.FromHTML(page.URL, page.HTML)
	if err != nil {
		return nil, err
	}
	e.logIssues(ctx, res.Issues)
	if len(res.Records) == 0 {
		return nil, &provider.ExtractionError{Provider: e.cfg.Name, URL: e.cfg.ListingURL, Err: ErrNoRows}
	}
	records := res.Records
	slog.InfoContext(ctx, "listing extracted", "provider", e.cfg.Name, "records", len(records), "issues", len(res.Issues))

	if e.enrich() {
		e.enrichDetails(ctx, records)
	}
	slog.DebugContext(ctx, "provider done", "provider", e.cfg.Name, "took", time.Since(start))
	return records, nil
}

func (e *Extractor) enrichDetails(ctx context.Context, records []provider.Record) {
	detailFields := e.cfg.Detail.Fields()
	byLink := map[string][]int{}
	var links []string
	for i := range records {
		for _, f := range detailFields {
			if _, ok := records[i].Get(f); !ok {
				records[i].Set(f, nil)
			}
		}
		link := records[i].Link()
		if link == "" {
			continue
		}
		if e.cfg.ResolveLink != nil {
			link = e.cfg.ResolveLink(link)
			records[i].SetLink(link)
		}
		if _, seen := byLink[link]; !seen {
			links = append(links, link)
		}
		byLink[link] = append(byLink[link], i)
	}
	if len(links) > e.cfg.MaxDetails {
		links = links[:e.cfg.MaxDetails]
	}

	for n, link := range links {
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "product pages skipped", "provider", e.cfg.Name, "remaining", len(links)-n, "err", ctx.Err())
			return
		}
		detail, err := e.detail(ctx, link)
		if err != nil {
			slog.WarnContext(ctx, "product page failed", "provider", e.cfg.Name, "url", link, "err", err)
			continue
		}
		for _, i := range byLink[link] {
			for _, f := range detailFields {
				if v, _ := detail.Get(f); v != nil {
					records[i].Set(f, v)
				}
			}
		}
		slog.DebugContext(ctx, "product page extracted", "provider", e.cfg.Name, "url", link, "n", n+1, "of", len(links))
	}
}

func (e *Extractor) detail(ctx context.Context, link string) (provider.Record, error) {
	x := extract.Extractor{Provider: e.cfg.Name, Schema: e.cfg.Detail}
	req := provider.FetchRequest{URL: link, Format: e.cfg.DetailMode, Actions: e.cfg.DetailActions}
	if req.Format == provider.FormatJSON {
		req.Schema = e.cfg.Detail.JSONSchema()
		req.Prompt = e.cfg.Prompt
	}
	page, err := e.f.Fetch(ctx, req)
	if err != nil {
		return provider.Record{}, err
	}
	var res extract.Result
	if req.Format == provider.FormatJSON {
		res, err = x.FromJSON(page.URL, page.Data)
	} else {
		res, err = x.FromHTML(page.URL, page.HTML)
	}
	if err != nil {
		return provider.Record{}, err
	}
	e.logIssues(ctx, res.Issues)
	if len(res.Records) == 0 {
		return provider.Record{}, &provider.ExtractionError{Provider: e.cfg.Name, URL: link, Err: ErrNoRows}
	}
	return res.Records[0], nil
}

func (e *Extractor) logIssues(ctx context.Context, issues []*provider.ExtractionError) {
	for _, is := range issues {
		slog.WarnContext(ctx, "value dropped", "provider", is.Provider, "field", is.Field, "value", is.Value, "url", is.URL, "err", is.Err)
	}
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
