package scrapeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"etfscraper/internal/provider"
)

const scrapePath = "/v2/scrape"

var (
	errRateLimited  = errors.New("rate limited")
	errUnsuccessful = errors.New("scrape unsuccessful")
	errEmptyPage    = errors.New("empty page content")
)

type scrapeRequest struct {
	URL             string            `json:"url"`
	Formats         []any             `json:"formats"`
	OnlyMainContent bool              `json:"onlyMainContent"`
	Timeout         int64             `json:"timeout,omitempty"`
	Actions         []provider.Action `json:"actions,omitempty"`
}

type jsonFormat struct {
	Type   string         `json:"type"`
	Schema map[string]any `json:"schema,omitempty"`
	Prompt string         `json:"prompt,omitempty"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		RawHTML  string         `json:"rawHtml"`
		HTML     string         `json:"html"`
		JSON     map[string]any `json:"json"`
		Metadata struct {
			StatusCode int    `json:"statusCode"`
			SourceURL  string `json:"sourceURL"`
			Error      string `json:"error"`
		} `json:"metadata"`
	} `json:"data"`
}

// Fetch renders req.URL through the service. Failures are *provider.FetchError.
func (c *Client) Fetch(ctx context.Context, req provider.FetchRequest) (*provider.Page, error) {
	body := c.buildRequest(req)
	for attempt := 0; ; attempt++ {
		page, retryable, err := c.do(ctx, req, body)
		if err == nil {
			return page, nil
		}
		if !retryable || attempt >= c.retries {
			return nil, err
		}
		back := c.backoff * time.Duration(1<<attempt)
		slog.WarnContext(ctx, "scrape failed, retrying", "url", req.URL, "attempt", attempt+1, "backoff", back, "err", err)
		t := time.NewTimer(back)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, &provider.FetchError{URL: req.URL, Err: ctx.Err()}
		case <-t.C:
		}
	}
}

func (c *Client) buildRequest(req provider.FetchRequest) scrapeRequest {
	body := scrapeRequest{
		URL:     req.URL,
		Timeout: c.timeout.Milliseconds(),
		Actions: req.Actions,
	}
	if req.Format == provider.FormatJSON {
		body.Formats = []any{jsonFormat{Type: string(provider.FormatJSON), Schema: req.Schema, Prompt: req.Prompt}}
	} else {
		body.Formats = []any{string(provider.FormatHTML)}
	}
	return body
}

// do performs one attempt. retryable reports whether another attempt may help.
func (c *Client) do(ctx context.Context, req provider.FetchRequest, body scrapeRequest) (page *provider.Page, retryable bool, err error) {
	// The service needs headroom beyond its own render timeout to answer.
	ctx, cancel := context.WithTimeout(ctx, c.timeout+10*time.Second)
	defer cancel()

	slog.DebugContext(ctx, "scrape request", "url", req.URL, "format", req.Format)
	res, err := c.rc.R().
		SetContext(ctx).
		SetBody(body).
		Post(scrapePath)
	if err != nil {
		return nil, ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded), &provider.FetchError{URL: req.URL, Err: fmt.Errorf("performing request: %w", err)}
	}
	raw := res.RawBody()
	defer raw.Close()

	reader, err := decodeBody(res.Header().Get("Content-Encoding"), raw)
	if err != nil {
		return nil, false, &provider.FetchError{URL: req.URL, StatusCode: res.StatusCode(), Err: err}
	}
	defer reader.Close()

	status := res.StatusCode()
	switch {
	case status == http.StatusTooManyRequests:
		return nil, true, &provider.FetchError{URL: req.URL, StatusCode: status, RateLimited: true, Err: withDetail(errRateLimited, reader)}
	case status >= 500:
		return nil, true, &provider.FetchError{URL: req.URL, StatusCode: status, Err: withDetail(fmt.Errorf("unexpected status code: %d", status), reader)}
	case status < 200 || status > 299:
		return nil, false, &provider.FetchError{URL: req.URL, StatusCode: status, Err: withDetail(fmt.Errorf("unexpected status code: %d", status), reader)}
	}

	var out scrapeResponse
	if err := json.NewDecoder(reader).Decode(&out); err != nil {
		return nil, false, &provider.FetchError{URL: req.URL, StatusCode: status, Err: fmt.Errorf("decoding scrape response: %w", err)}
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "no error given"
		}
		return nil, false, &provider.FetchError{URL: req.URL, StatusCode: status, Err: fmt.Errorf("%w: %s", errUnsuccessful, msg)}
	}
	if sc := out.Data.Metadata.StatusCode; sc >= 400 {
		return nil, sc >= 500 || sc == http.StatusTooManyRequests, &provider.FetchError{
			URL:         req.URL,
			StatusCode:  sc,
			RateLimited: sc == http.StatusTooManyRequests,
			Err:         fmt.Errorf("target responded %d %s", sc, out.Data.Metadata.Error),
		}
	}

	page = &provider.Page{URL: req.URL, StatusCode: out.Data.Metadata.StatusCode, FetchedAt: time.Now().UTC()}
	if req.Format == provider.FormatJSON {
		if out.Data.JSON == nil {
			return nil, false, &provider.FetchError{URL: req.URL, StatusCode: status, Err: errEmptyPage}
		}
		page.Data = out.Data.JSON
		return page, false, nil
	}
	page.HTML = out.Data.RawHTML
	if page.HTML == "" {
		page.HTML = out.Data.HTML
	}
	if strings.TrimSpace(page.HTML) == "" {
		return nil, false, &provider.FetchError{URL: req.URL, StatusCode: status, Err: errEmptyPage}
	}
	return page, false, nil
}

// withDetail appends the service's error message when the body carries one.
func withDetail(err error, r io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return fmt.Errorf("%w: %s", err, e.Error)
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return fmt.Errorf("%w: %s", err, s)
	}
	return err
}
