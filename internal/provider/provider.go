package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is the normalized shape returned by all extractors: an ordered set of
// fields. Key order is the schema's declared order and survives JSON encoding.
// Missing values are kept as nil and encode as null.
type Record struct {
	fields []Field
	link   string
}

// NewRecord returns a record with the given fields set to nil, in order.
func NewRecord(names ...string) Record {
	r := Record{fields: make([]Field, 0, len(names))}
	for _, n := range names {
		r.fields = append(r.fields, Field{Name: n})
	}
	return r
}

// Set assigns v to name, appending the field when it is not yet present.
func (r *Record) Set(name string, v any) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields[i].Value = v
			return
		}
	}
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Get returns the value of name and whether the field exists.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Text returns the value of name when it is a string, otherwise "".
func (r Record) Text(name string) string {
	v, _ := r.Get(name)
	s, _ := v.(string)
	return s
}

// Keys lists field names in order.
func (r Record) Keys() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Name
	}
	return out
}

// Fields returns a copy of the ordered fields.
func (r Record) Fields() []Field {
	return append([]Field(nil), r.fields...)
}

// Len is the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Link is the product page the record was read from. It is not serialized.
func (r Record) Link() string { return r.link }

// SetLink records the product page URL.
func (r *Record) SetLink(u string) { r.link = u }

// WithProvider returns a copy with a leading "provider" field.
func (r Record) WithProvider(name string) Record {
	out := Record{fields: make([]Field, 0, len(r.fields)+1), link: r.link}
	out.fields = append(out.fields, Field{Name: "provider", Value: name})
	for _, f := range r.fields {
		if f.Name == "provider" {
			continue
		}
		out.fields = append(out.fields, f)
	}
	return out
}

// MarshalJSON writes the fields as an object in declared order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := marshalNoEscape(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads an object keeping its key order. Nested values decode
// into the generic encoding/json shapes; numbers stay float64.
func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}
	r.fields = r.fields[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: expected key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("record: field %s: %w", name, err)
		}
		r.fields = append(r.fields, Field{Name: name, Value: v})
	}
	_, err = dec.Token()
	return err
}

// Holding is one position of a fund's top holdings. Weight is a ratio.
type Holding struct {
	Name         *string  `json:"name"`
	ISIN         *string  `json:"isin"`
	Sector       *string  `json:"sector"`
	SecurityType *string  `json:"security_type"`
	Country      *string  `json:"country"`
	Currency     *string  `json:"currency"`
	Weight       *float64 `json:"weight"`
}

// Format selects what the scraping service returns for a page.
type Format string

const (
	FormatHTML Format = "rawHtml"
	FormatJSON Format = "json"
)

// Action is a browser step the scraping service runs before capturing the
// page, e.g. {"type":"wait","milliseconds":2000} or {"type":"click","selector":"#accept"}.
type Action map[string]any

// FetchRequest describes one page to render.
type FetchRequest struct {
	URL     string
	Format  Format
	Schema  map[string]any
	Prompt  string
	Actions []Action
}

// Page is what the scraping service returned for a URL. HTML is set for
// FormatHTML requests, Data for FormatJSON requests.
type Page struct {
	URL        string         `json:"url"`
	HTML       string         `json:"html,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	FetchedAt  time.Time      `json:"fetched_at"`
}

// Fetcher retrieves rendered pages.
//
//go:generate mockgen -package=providertest -destination=providertest/mock_provider.go -source=provider.go
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*Page, error)
}

// Extractor produces the records of one fund provider.
type Extractor interface {
	Name() string
	Extract(ctx context.Context) ([]Record, error)
}

// FetchError reports a failed page fetch.
type FetchError struct {
	URL         string
	StatusCode  int
	RateLimited bool
	Err         error
}

func (e *FetchError) Error() string {
	switch {
	case e.RateLimited:
		return fmt.Sprintf("fetch %s: rate limited: %v", e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError reports a page whose content did not match the schema.
// Field and Value are set when a single value could not be parsed.
type ExtractionError struct {
	Provider string
	URL      string
	Field    string
	Value    string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: extract %s from %q (%s): %v", e.Provider, e.Field, e.Value, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: extract %s: %v", e.Provider, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
