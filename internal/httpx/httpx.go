package httpx

import (
	"net"
	"net/http"
	"time"
)

// DefaultUserAgent identifies this client to the scraping service.
const DefaultUserAgent = "etf-scraper/1.0"

// New returns an http.Client with pooled connections sized for a handful of
// slow render calls. Response headers may take as long as the page render, so
// only the overall timeout bounds them.
func New(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       10,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
