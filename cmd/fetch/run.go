package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"etfscraper/internal/catalog"
	"etfscraper/internal/config"
	"etfscraper/internal/orchestrator"
	"etfscraper/internal/output"
	"etfscraper/internal/provider"
)

// fetcherFactory builds the fetch stack; tests substitute a mock.
type fetcherFactory func(config.Config) (provider.Fetcher, func(), error)

// run validates cfg before anything is fetched, runs the selected providers
// and prints a summary. It fails on invalid configuration or when no
// provider returned a record; partial failure is reported only.
func run(ctx context.Context, cfg config.Config, names []string, newFetcher fetcherFactory, out io.Writer) (orchestrator.Report, error) {
	if err := cfg.Validate(); err != nil {
		return orchestrator.Report{}, err
	}
	f, closeFetcher, err := newFetcher(cfg)
	if err != nil {
		return orchestrator.Report{}, err
	}
	defer closeFetcher()

	xs, err := catalog.Build(cfg, f, names)
	if err != nil {
		return orchestrator.Report{}, err
	}
	if len(xs) == 0 {
		return orchestrator.Report{}, &config.Error{Key: "providers", Err: errors.New("every provider is disabled")}
	}

	o := &orchestrator.Orchestrator{
		Extractors:  xs,
		Writer:      &output.Writer{Dir: cfg.Output.Dir, Timestamped: cfg.Output.Timestamped},
		Parallel:    cfg.Parallel,
		Combined:    cfg.Output.WriteCombined() && len(xs) > 1,
		TagProvider: cfg.Output.TagRecords(),
	}
	rep := o.Run(ctx)
	printSummary(out, rep)
	return rep, rep.Err()
}

func printSummary(w io.Writer, rep orchestrator.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Provider", "Records", "Took", "Output", "Error"})
	for _, p := range rep.Providers {
		errText := ""
		switch {
		case p.Err != nil:
			errText = p.Err.Error()
		case p.WriteErr != nil:
			errText = p.WriteErr.Error()
		}
		t.AppendRow(table.Row{p.Provider, p.Records, p.Took.Round(time.Millisecond), p.Path, errText})
	}
	if rep.CombinedPath != "" || rep.CombinedErr != nil {
		errText := ""
		if rep.CombinedErr != nil {
			errText = rep.CombinedErr.Error()
		}
		t.AppendFooter(table.Row{orchestrator.CombinedName, rep.Total, "", rep.CombinedPath, errText})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
