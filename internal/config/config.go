package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

// Scraper configures the scraping service client and request pacing.
type Scraper struct {
	APIKey                string `json:"api_key"`
	Endpoint              string `json:"endpoint"`
	TimeoutSec            int    `json:"timeout_sec"`
	Retries               int    `json:"retries"`
	RetryBackoffMS        int    `json:"retry_backoff_ms"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	Burst                 int    `json:"burst"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	BatchSize             int    `json:"batch_size"`
	BatchPauseSec         int    `json:"batch_pause_sec"`
	CacheTTLSeconds       int    `json:"cache_ttl_sec"`
	CacheMaxItems         int    `json:"cache_max_items"`
	RedisAddr             string `json:"redis_addr"`
	UserAgent             string `json:"user_agent"`
}

type Output struct {
	Dir         string `json:"dir"`
	Combined    *bool  `json:"combined"`
	TagProvider *bool  `json:"tag_provider"`
	Timestamped bool   `json:"timestamped"`
}

// Provider holds the per-run settings of one fund provider.
type Provider struct {
	Enabled    *bool  `json:"enabled"`
	ListingURL string `json:"listing_url"`
	MaxDetails int    `json:"max_details"`
	DetailMode string `json:"detail_mode"`
}

type Config struct {
	Server    Server   `json:"server"`
	Scraper   Scraper  `json:"scraper"`
	Output    Output   `json:"output"`
	Parallel  int      `json:"parallel"`
	Amundi    Provider `json:"amundi"`
	IShares   Provider `json:"ishares"`
	Vanguard  Provider `json:"vanguard"`
	Xtrackers Provider `json:"xtrackers"`
}

var providerNames = []string{"amundi", "ishares", "vanguard", "xtrackers"}

// Detail modes for product pages.
const (
	DetailHTML = "html"
	DetailJSON = "json"
)

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 300},
		Scraper: Scraper{
			Endpoint:       "https://api.firecrawl.dev",
			TimeoutSec:     30,
			RetryBackoffMS: 250,
			BatchSize:      2,
			BatchPauseSec:  0,
			CacheMaxItems:  256,
		},
		Output:    Output{Dir: "output", Combined: boolPtr(true), TagProvider: boolPtr(true)},
		Parallel:  1,
		Amundi:    Provider{Enabled: boolPtr(true), DetailMode: DetailHTML},
		IShares:   Provider{Enabled: boolPtr(true), DetailMode: DetailHTML},
		Vanguard:  Provider{Enabled: boolPtr(true), DetailMode: DetailHTML},
		Xtrackers: Provider{Enabled: boolPtr(true), DetailMode: DetailHTML},
	}
}

// Load reads a JSON5 config from path and merges <name>.local.<ext> next to
// it over the result. If path is empty, config.json5 or config.json in the
// working directory is used when present. Missing files leave the defaults.
// Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range []string{"config.json5", "config.json"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, &Error{Key: path, Err: fmt.Errorf("read config: %w", err)}
		}
		if err == nil {
			if err := json5.Unmarshal(b, &cfg); err != nil {
				return cfg, &Error{Key: path, Err: fmt.Errorf("parse config: %w", err)}
			}
		}
		if err := mergeLocal(&cfg, localPath(path)); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// localPath turns config.json5 into config.local.json5.
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

// mergeLocal applies non-zero values of the local override file. Booleans
// that default to true are pointers so the override can switch them off.
func mergeLocal(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &Error{Key: path, Err: fmt.Errorf("read config: %w", err)}
	}
	var override Config
	if err := json5.Unmarshal(b, &override); err != nil {
		return &Error{Key: path, Err: fmt.Errorf("parse config: %w", err)}
	}
	if err := mergo.Merge(cfg, override, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return &Error{Key: path, Err: fmt.Errorf("merge config: %w", err)}
	}
	slog.Info("merging config with local overrides", "local", path)
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	setInt(&cfg.Server.RequestTimeoutSec, "REQUEST_TIMEOUT_SEC", 1)

	if v := os.Getenv("FIRECRAWL_API_KEY"); v != "" {
		cfg.Scraper.APIKey = v
	}
	if v := os.Getenv("SCRAPER_API_KEY"); v != "" {
		cfg.Scraper.APIKey = v
	}
	if v := os.Getenv("SCRAPER_ENDPOINT"); v != "" {
		cfg.Scraper.Endpoint = v
	}
	if v := os.Getenv("SCRAPER_USER_AGENT"); v != "" {
		cfg.Scraper.UserAgent = v
	}
	setInt(&cfg.Scraper.TimeoutSec, "SCRAPER_TIMEOUT_SEC", 1)
	setInt(&cfg.Scraper.Retries, "SCRAPER_RETRIES", 0)
	setInt(&cfg.Scraper.MaxRequestsPerMinute, "SCRAPER_MAX_RPM", 0)
	setInt(&cfg.Scraper.Burst, "SCRAPER_BURST", 1)
	setInt(&cfg.Scraper.MinRequestIntervalSec, "SCRAPER_MIN_INTERVAL_SEC", 0)
	setInt(&cfg.Scraper.BatchSize, "SCRAPER_BATCH_SIZE", 0)
	setInt(&cfg.Scraper.BatchPauseSec, "SCRAPER_BATCH_PAUSE_SEC", 0)
	setInt(&cfg.Scraper.CacheTTLSeconds, "SCRAPER_CACHE_TTL_SEC", 0)
	setInt(&cfg.Scraper.CacheMaxItems, "SCRAPER_CACHE_MAX_ITEMS", 1)
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Scraper.RedisAddr = v
	}

	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if b, ok := envBool("OUTPUT_TIMESTAMPED"); ok {
		cfg.Output.Timestamped = b
	}
	setInt(&cfg.Parallel, "PARALLEL", 1)

	maxDetails := -1
	setInt(&maxDetails, "MAX_DETAILS", 0)
	for _, name := range providerNames {
		p := cfg.Provider(name)
		prefix := strings.ToUpper(name)
		if b, ok := envBool(prefix + "_ENABLED"); ok {
			p.Enabled = boolPtr(b)
		}
		if v := os.Getenv(prefix + "_LISTING_URL"); v != "" {
			p.ListingURL = v
		}
		if maxDetails >= 0 {
			p.MaxDetails = maxDetails
		}
	}
}

// Provider returns the settings of a provider by its canonical name, or nil.
func (c *Config) Provider(name string) *Provider {
	switch name {
	case "amundi":
		return &c.Amundi
	case "ishares":
		return &c.IShares
	case "vanguard":
		return &c.Vanguard
	case "xtrackers":
		return &c.Xtrackers
	}
	return nil
}

// Validate reports the first setting that prevents a run. It must pass
// before any page is requested.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Scraper.APIKey) == "" {
		return &Error{Key: "scraper.api_key", Err: ErrMissingAPIKey}
	}
	if u, err := url.Parse(c.Scraper.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return &Error{Key: "scraper.endpoint", Err: fmt.Errorf("not an absolute URL: %q", c.Scraper.Endpoint)}
	}
	if c.Scraper.TimeoutSec <= 0 {
		return &Error{Key: "scraper.timeout_sec", Err: errors.New("must be positive")}
	}
	if c.Scraper.Retries < 0 {
		return &Error{Key: "scraper.retries", Err: errors.New("must not be negative")}
	}
	for _, name := range providerNames {
		p := c.Provider(name)
		if p.MaxDetails < 0 {
			return &Error{Key: name + ".max_details", Err: errors.New("must not be negative")}
		}
		switch p.DetailMode {
		case "", DetailHTML, DetailJSON:
		default:
			return &Error{Key: name + ".detail_mode", Err: fmt.Errorf("unknown mode %q", p.DetailMode)}
		}
	}
	return nil
}

// On reports whether the provider runs. Unset means enabled.
func (p Provider) On() bool { return p.Enabled == nil || *p.Enabled }

// WriteCombined reports whether combined.json is written. Unset means yes.
func (o Output) WriteCombined() bool { return o.Combined == nil || *o.Combined }

// TagRecords reports whether combined records get a provider field.
func (o Output) TagRecords() bool { return o.TagProvider == nil || *o.TagProvider }

func (s Scraper) Timeout() time.Duration { return time.Duration(s.TimeoutSec) * time.Second }

func (s Scraper) RetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoffMS) * time.Millisecond
}

func boolPtr(b bool) *bool { return &b }

// setInt overrides *dst with the integer in env key when it is at least floor.
func setInt(dst *int, key string, floor int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	x, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("ignoring invalid integer env", "key", key, "value", v)
		return
	}
	if x >= floor {
		*dst = x
	}
}

func envBool(key string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}

// SplitCSV splits a comma-separated list, dropping blanks.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
