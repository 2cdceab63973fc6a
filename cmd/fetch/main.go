package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"etfscraper/internal/catalog"
	"etfscraper/internal/config"
)

type flags struct {
	configPath  string
	outputDir   string
	verbose     bool
	parallel    int
	maxDetails  int
	timestamped bool
}

func newRootCmd() *cobra.Command {
	var fl flags
	root := &cobra.Command{
		Use:           "fetch [provider]",
		Short:         "fetch scrapes ETF listings and writes them as JSON files.",
		Long:          "Without arguments every enabled provider runs and output/combined.json is written.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initSlog(fl.verbose)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, fl, nil)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&fl.configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json5 (optional)")
	pf.StringVarP(&fl.outputDir, "output", "o", "", "output directory (default from config, \"output\")")
	pf.BoolVarP(&fl.verbose, "verbose", "v", false, "debug logging")
	pf.IntVar(&fl.parallel, "parallel", 0, "providers to run at once (default from config, 1)")
	pf.IntVar(&fl.maxDetails, "max-details", -1, "product pages to enrich per provider (default from config)")
	pf.BoolVar(&fl.timestamped, "timestamped", false, "append _YYYYMMDD_HHMMSS to file names")

	for _, name := range catalog.Names {
		root.AddCommand(&cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Scrape %s only and write output/%s.json.", name, name),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return execute(cmd, fl, []string{name})
			},
		})
	}
	root.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Scrape every enabled provider and write the combined output.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, fl, nil)
		},
	})
	return root
}

func execute(cmd *cobra.Command, fl flags, names []string) error {
	cfg, err := config.Load(fl.configPath)
	if err != nil {
		return err
	}
	if fl.outputDir != "" {
		cfg.Output.Dir = fl.outputDir
	}
	if fl.parallel > 0 {
		cfg.Parallel = fl.parallel
	}
	if fl.timestamped {
		cfg.Output.Timestamped = true
	}
	if fl.maxDetails >= 0 {
		for _, n := range catalog.Names {
			cfg.Provider(n).MaxDetails = fl.maxDetails
		}
	}
	_, err = run(cmd.Context(), cfg, names, catalog.NewFetcher, cmd.OutOrStdout())
	return err
}

func initSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
