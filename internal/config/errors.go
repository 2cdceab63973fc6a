package config

import "errors"

// ErrMissingAPIKey means no scraping service key was configured.
var ErrMissingAPIKey = errors.New("scraping API key is not set (SCRAPER_API_KEY)")

// Error is an invalid or unreadable configuration. It is fatal and raised
// before any page is requested.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string { return "config " + e.Key + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }
