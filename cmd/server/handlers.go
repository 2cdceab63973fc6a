package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"etfscraper/internal/aggregate"
	"etfscraper/internal/config"
	"etfscraper/internal/orchestrator"
	"etfscraper/internal/output"
	"etfscraper/internal/provider"
	"etfscraper/internal/provider/etfsite"
)

type server struct {
	extractors []provider.Extractor
	outputDir  string
	timeout    time.Duration
	parallel   int
	tag        bool
}

type providerInfo struct {
	Name       string   `json:"name"`
	Fields     []string `json:"fields,omitempty"`
	ListingURL string   `json:"listing_url,omitempty"`
	MaxDetails int      `json:"max_details"`
	DetailMode string   `json:"detail_mode,omitempty"`
}

// siteExtractor is the view of etfsite.Extractor the providers listing uses.
type siteExtractor interface {
	Fields() []string
	Config() etfsite.Config
}

type failure struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

type etfsResponse struct {
	Records json.RawMessage `json:"records"`
	Counts  map[string]int  `json:"counts"`
	Failed  []failure       `json:"failed"`
}

// Output names are file stems such as "amundi" or "combined_20250307_090501".
var outputName = regexp.MustCompile(`^[a-z0-9_]+$`)

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/providers", s.handleProviders).Methods(http.MethodGet)
	api.HandleFunc("/etfs", s.handleETFs).Methods(http.MethodGet)
	api.HandleFunc("/output/{name}", s.handleOutput).Methods(http.MethodGet)
	r.Use(logRequests)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return withJSONHeaders(handlers.CompressHandler(handlers.RecoveryHandler()(cors(r))))
}

func (s *server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	out := make([]providerInfo, 0, len(s.extractors))
	for _, x := range s.extractors {
		info := providerInfo{Name: x.Name()}
		if sx, ok := x.(siteExtractor); ok {
			cfg := sx.Config()
			info.Fields = sx.Fields()
			info.ListingURL = cfg.ListingURL
			info.MaxDetails = cfg.MaxDetails
			info.DetailMode = string(cfg.DetailMode)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleETFs runs the selected providers now. Nothing is written to disk.
func (s *server) handleETFs(w http.ResponseWriter, r *http.Request) {
	selected, err := s.selectExtractors(r.URL.Query().Get("providers"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	o := &orchestrator.Orchestrator{Extractors: selected, Parallel: s.parallel}
	writeReport(w, o.Run(ctx), s.tag)
}

func (s *server) handleOutput(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	name = strings.TrimSuffix(name, ".json")
	if !outputName.MatchString(name) {
		http.Error(w, "invalid output name", http.StatusBadRequest)
		return
	}
	b, err := os.ReadFile(filepath.Join(s.outputDir, name+".json"))
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "output not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "read output", "name", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *server) selectExtractors(csv string) ([]provider.Extractor, error) {
	if strings.TrimSpace(csv) == "" {
		return s.extractors, nil
	}
	want := map[string]bool{}
	for _, n := range config.SplitCSV(csv) {
		canon := aggregate.NormalizeProvider(n)
		if canon == "" {
			return nil, errors.New("unknown provider: " + n)
		}
		want[canon] = true
	}
	var out []provider.Extractor
	for _, x := range s.extractors {
		if want[x.Name()] {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no configured provider matches " + csv)
	}
	return out, nil
}

// writeReport answers 502 only when every selected provider failed.
func writeReport(w http.ResponseWriter, rep orchestrator.Report, tag bool) {
	results := rep.Results()
	records, _ := aggregate.Combine(results, tag)
	counts := aggregate.Counts(results)
	failed := make([]failure, 0)
	for _, p := range rep.Providers {
		if p.Err != nil {
			failed = append(failed, failure{Provider: p.Provider, Error: p.Err.Error()})
		}
	}
	if len(failed) > 0 && len(failed) == len(rep.Providers) {
		writeJSON(w, http.StatusBadGateway, etfsResponse{Records: json.RawMessage("[]"), Counts: counts, Failed: failed})
		return
	}
	b, err := output.Encode(records)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, etfsResponse{Records: b, Counts: counts, Failed: failed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.InfoContext(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}
