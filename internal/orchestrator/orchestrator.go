// Package orchestrator runs every provider extractor, isolates their
// failures and writes the per-provider and combined outputs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"etfscraper/internal/aggregate"
	"etfscraper/internal/provider"
)

// CombinedName is the file name stem of the merged output.
const CombinedName = "combined"

// RecordWriter persists one named record list and returns its path.
type RecordWriter interface {
	Write(name string, records []provider.Record) (string, error)
}

// Orchestrator runs Extractors in order. Parallel > 1 runs that many
// providers at once; results keep the extractor order either way.
type Orchestrator struct {
	Extractors []provider.Extractor
	Writer     RecordWriter
	Parallel   int
	// Combined writes combined.json from all successful providers.
	Combined bool
	// TagProvider adds a "provider" field to combined records.
	TagProvider bool
}

// ProviderReport is the outcome of one provider.
type ProviderReport struct {
	Provider string
	Records  int
	Took     time.Duration
	Err      error
	Path     string
	WriteErr error
}

// Report summarizes a run.
type Report struct {
	Providers    []ProviderReport
	Total        int
	CombinedPath string
	CombinedErr  error

	results []aggregate.Result
}

// Results returns the extracted records per provider in run order.
func (r Report) Results() []aggregate.Result { return r.results }

// Failed lists providers whose extraction or output failed.
func (r Report) Failed() []string {
	var out []string
	for _, p := range r.Providers {
		if p.Err != nil || p.WriteErr != nil {
			out = append(out, p.Provider)
		}
	}
	return out
}

// ErrNoRecords is returned by Err when no provider produced a record.
var ErrNoRecords = errors.New("no records retrieved from any provider")

// Err reports a run that produced nothing. Partial success is not an error.
func (r Report) Err() error {
	if r.Total == 0 {
		return ErrNoRecords
	}
	return nil
}

// Run extracts every provider, writes <provider>.json for each success and
// combined.json when enabled. A provider failure never stops the others.
func (o *Orchestrator) Run(ctx context.Context) Report {
	results := o.extract(ctx)

	rep := Report{
		Providers: make([]ProviderReport, len(results)),
		results:   make([]aggregate.Result, len(results)),
	}
	for i, res := range results {
		rep.results[i] = res.Result
		pr := &rep.Providers[i]
		pr.Provider = res.Provider
		pr.Err = res.Err
		pr.Took = res.took
		if res.Err != nil {
			slog.ErrorContext(ctx, "provider failed", "provider", res.Provider, "err", res.Err)
			continue
		}
		pr.Records = len(res.Records)
		rep.Total += len(res.Records)
		if o.Writer == nil {
			continue
		}
		pr.Path, pr.WriteErr = o.Writer.Write(res.Provider, res.Records)
		if pr.WriteErr != nil {
			slog.ErrorContext(ctx, "write failed", "provider", res.Provider, "err", pr.WriteErr)
			continue
		}
		slog.InfoContext(ctx, "provider written", "provider", res.Provider, "records", pr.Records, "path", pr.Path)
	}

	if o.Combined && o.Writer != nil && rep.Total > 0 {
		combined, failed := aggregate.Combine(rep.results, o.TagProvider)
		rep.CombinedPath, rep.CombinedErr = o.Writer.Write(CombinedName, combined)
		if rep.CombinedErr != nil {
			slog.ErrorContext(ctx, "write failed", "provider", CombinedName, "err", rep.CombinedErr)
		} else {
			slog.InfoContext(ctx, "combined written", "records", len(combined), "failed", failed, "path", rep.CombinedPath)
		}
	}
	return rep
}

type result struct {
	aggregate.Result
	took time.Duration
}

// extract runs the extractors with at most Parallel at a time. Each goroutine
// owns its slot in the result slice.
func (o *Orchestrator) extract(ctx context.Context) []result {
	results := make([]result, len(o.Extractors))
	var g errgroup.Group
	limit := o.Parallel
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, x := range o.Extractors {
		i, x := i, x
		g.Go(func() error {
			results[i] = runOne(ctx, x)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runOne(ctx context.Context, x provider.Extractor) (res result) {
	start := time.Now()
	res.Provider = x.Name()
	defer func() {
		if p := recover(); p != nil {
			res.Records = nil
			res.Err = &panicError{value: p}
		}
		res.took = time.Since(start)
	}()
	slog.InfoContext(ctx, "provider started", "provider", res.Provider)
	res.Records, res.Err = x.Extract(ctx)
	return res
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("extractor panicked: %v", e.value) }
