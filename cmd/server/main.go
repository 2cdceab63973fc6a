package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"etfscraper/internal/catalog"
	"etfscraper/internal/config"
)

func main() {
	initSlog(os.Getenv("VERBOSE") != "")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fatal("config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("config", err)
	}
	f, closeFetcher, err := catalog.NewFetcher(cfg)
	if err != nil {
		fatal("fetcher", err)
	}
	defer closeFetcher()
	extractors, err := catalog.Build(cfg, f, nil)
	if err != nil {
		fatal("providers", err)
	}

	s := &server{
		extractors: extractors,
		outputDir:  cfg.Output.Dir,
		timeout:    time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
		parallel:   cfg.Parallel,
		tag:        cfg.Output.TagRecords(),
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.timeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr, "providers", len(extractors))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server", err)
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
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

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
