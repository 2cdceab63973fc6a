// Package extract turns rendered pages into records using declarative schemas.
//
// A Schema lists Rules in output order. Each rule locates one value with a CSS
// selector (optionally an attribute and a regular expression) and declares how
// the text is normalized. The same schema reads raw HTML through goquery or a
// structured result returned by the scraping service.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"etfscraper/internal/normalize"
	"etfscraper/internal/provider"
)

// Kind is how a rule's text is normalized.
type Kind int

const (
	Text Kind = iota
	Percent
	Number
	Amount
	Holdings
)

func (k Kind) String() string {
	switch k {
	case Percent:
		return "percent"
	case Number:
		return "number"
	case Amount:
		return "amount"
	case Holdings:
		return "holdings"
	}
	return "text"
}

// MaxHoldings caps the holdings list of a fund.
const MaxHoldings = 10

// Holding column names accepted in Rule.Columns.
const (
	ColName         = "name"
	ColISIN         = "isin"
	ColSector       = "sector"
	ColSecurityType = "security_type"
	ColCountry      = "country"
	ColCurrency     = "currency"
	ColWeight       = "weight"
)

// Rule locates one field.
type Rule struct {
	// Field is the output key.
	Field string
	// Selector is matched below the row (or the document). Empty means the
	// row element itself. For Holdings it selects the holding rows.
	Selector string
	// Attr reads an attribute instead of the element text.
	Attr string
	// Pattern keeps the first capture group, or the whole match when the
	// pattern has no group. A value that does not match counts as missing.
	Pattern *regexp.Regexp
	// Transform runs after Pattern, e.g. to split "ISIN / WKN".
	Transform func(string) string
	Kind      Kind
	// CurrencyField receives the currency of an Amount.
	CurrencyField string
	// Columns are read per holding row; Field must be one of the Col* names.
	Columns []Rule
	// Limit caps Holdings rows. Zero means MaxHoldings.
	Limit int
	// Or is tried when this rule finds nothing.
	Or *Rule
}

// Schema is an ordered set of rules.
type Schema struct {
	// Rows selects one element per record. Empty means the page is one record.
	Rows string
	// Link reads the product page URL of a row. Relative URLs are resolved
	// against the page URL.
	Link   *Rule
	Rules  []Rule
	Locale normalize.Locale
}

// Fields lists the output keys in order, amount currencies directly after
// their amount.
func (s Schema) Fields() []string {
	out := make([]string, 0, len(s.Rules)+2)
	seen := make(map[string]struct{}, len(s.Rules)+2)
	add := func(f string) {
		if _, ok := seen[f]; ok || f == "" {
			return
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	for _, r := range s.Rules {
		add(r.Field)
		if r.Kind == Amount {
			add(r.CurrencyField)
		}
	}
	return out
}

// Result is what a schema produced from one page. Issues are values that
// were present but could not be normalized; their fields are null.
type Result struct {
	Records []provider.Record
	Issues  []*provider.ExtractionError
}

var (
	errUnparseable = errors.New("unparseable value")
	errWrongType   = errors.New("unexpected value type")
)

// Extractor binds a schema to a provider name for error reporting.
type Extractor struct {
	Provider string
	Schema   Schema
}

// FromHTML applies the schema to a rendered page.
func (x Extractor) FromHTML(pageURL, html string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, &provider.ExtractionError{Provider: x.Provider, URL: pageURL, Err: fmt.Errorf("parse html: %w", err)}
	}
	var res Result
	if x.Schema.Rows == "" {
		res.Records = append(res.Records, x.record(pageURL, doc.Selection, &res))
		return res, nil
	}
	doc.Find(x.Schema.Rows).Each(func(_ int, row *goquery.Selection) {
		res.Records = append(res.Records, x.record(pageURL, row, &res))
	})
	return res, nil
}

func (x Extractor) record(pageURL string, sel *goquery.Selection, res *Result) provider.Record {
	rec := provider.NewRecord(x.Schema.Fields()...)
	for _, r := range x.Schema.Rules {
		x.applyHTML(&rec, pageURL, sel, r, res)
	}
	if x.Schema.Link != nil {
		if raw, ok := readHTML(sel, *x.Schema.Link); ok {
			rec.SetLink(resolve(pageURL, raw))
		}
	}
	return rec
}

func (x Extractor) applyHTML(rec *provider.Record, pageURL string, sel *goquery.Selection, r Rule, res *Result) {
	if r.Kind == Holdings {
		if hs := x.holdingsHTML(pageURL, sel, r, res); len(hs) > 0 {
			rec.Set(r.Field, hs)
		}
		return
	}
	raw, ok := readHTML(sel, r)
	for alt := r.Or; !ok && alt != nil; alt = alt.Or {
		raw, ok = readHTML(sel, *alt)
	}
	if !ok {
		return
	}
	x.setText(rec, pageURL, r, raw, res)
}

func (x Extractor) setText(rec *provider.Record, pageURL string, r Rule, raw string, res *Result) {
	loc := x.Schema.Locale
	switch r.Kind {
	case Text:
		rec.Set(r.Field, raw)
	case Percent:
		v, err := normalize.ParsePercent(raw, loc)
		if err != nil {
			res.Issues = append(res.Issues, x.issue(pageURL, r.Field, raw, err))
			return
		}
		rec.Set(r.Field, v)
	case Number:
		d, err := normalize.ParseNumber(raw, loc)
		if err != nil {
			res.Issues = append(res.Issues, x.issue(pageURL, r.Field, raw, err))
			return
		}
		rec.Set(r.Field, d.InexactFloat64())
	case Amount:
		a, err := normalize.ParseAmount(raw, loc)
		if err != nil {
			res.Issues = append(res.Issues, x.issue(pageURL, r.Field, raw, err))
			return
		}
		rec.Set(r.Field, a.Value)
		if r.CurrencyField != "" && a.Currency != "" {
			rec.Set(r.CurrencyField, a.Currency)
		}
	}
}

func (x Extractor) holdingsHTML(pageURL string, sel *goquery.Selection, r Rule, res *Result) []provider.Holding {
	limit := r.Limit
	if limit <= 0 {
		limit = MaxHoldings
	}
	var out []provider.Holding
	sel.Find(r.Selector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		var h provider.Holding
		for _, c := range r.Columns {
			raw, ok := readHTML(row, c)
			for alt := c.Or; !ok && alt != nil; alt = alt.Or {
				raw, ok = readHTML(row, *alt)
			}
			if !ok {
				continue
			}
			if err := x.setColumn(&h, c.Field, raw); err != nil {
				res.Issues = append(res.Issues, x.issue(pageURL, r.Field+"."+c.Field, raw, err))
			}
		}
		if h.Name == nil && h.ISIN == nil {
			return true
		}
		out = append(out, h)
		return len(out) < limit
	})
	if len(out) == 0 && r.Or != nil {
		return x.holdingsHTML(pageURL, sel, *r.Or, res)
	}
	return out
}

func (x Extractor) setColumn(h *provider.Holding, col, raw string) error {
	s := raw
	switch col {
	case ColName:
		h.Name = &s
	case ColISIN:
		h.ISIN = &s
	case ColSector:
		h.Sector = &s
	case ColSecurityType:
		h.SecurityType = &s
	case ColCountry:
		h.Country = &s
	case ColCurrency:
		h.Currency = &s
	case ColWeight:
		w, err := normalize.ParsePercent(raw, x.Schema.Locale)
		if err != nil {
			return err
		}
		h.Weight = &w
	default:
		return fmt.Errorf("unknown holdings column %q", col)
	}
	return nil
}

func (x Extractor) issue(pageURL, field, raw string, err error) *provider.ExtractionError {
	return &provider.ExtractionError{
		Provider: x.Provider,
		URL:      pageURL,
		Field:    field,
		Value:    raw,
		Err:      fmt.Errorf("%w: %w", errUnparseable, err),
	}
}

// readHTML returns the cleaned text a rule points at and whether it is present.
func readHTML(sel *goquery.Selection, r Rule) (string, bool) {
	target := sel
	if r.Selector != "" {
		target = sel.Find(r.Selector).First()
	}
	if target.Length() == 0 {
		return "", false
	}
	var raw string
	if r.Attr != "" {
		v, ok := target.Attr(r.Attr)
		if !ok {
			return "", false
		}
		raw = v
	} else {
		raw = target.Text()
	}
	return refine(raw, r)
}

func refine(raw string, r Rule) (string, bool) {
	raw = normalize.CleanText(raw)
	if r.Pattern != nil {
		m := r.Pattern.FindStringSubmatch(raw)
		if m == nil {
			return "", false
		}
		raw = m[0]
		if len(m) > 1 {
			raw = m[1]
		}
	}
	if r.Transform != nil {
		raw = normalize.CleanText(r.Transform(raw))
	}
	if normalize.IsMissing(raw) {
		return "", false
	}
	return raw, true
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}
