package extract

import (
	"fmt"
	"math"
	"strconv"

	"etfscraper/internal/normalize"
	"etfscraper/internal/provider"
)

// Keys used in structured extraction results.
const (
	ListKey = "etfs"
	LinkKey = "url"
)

// JSONSchema describes the schema's fields for the scraping service's
// structured extraction. Listing schemas wrap their rows in an "etfs" array.
func (s Schema) JSONSchema() map[string]any {
	props := map[string]any{}
	for _, r := range s.Rules {
		props[r.Field] = jsonType(r)
		if r.Kind == Amount && r.CurrencyField != "" {
			props[r.CurrencyField] = map[string]any{"type": "string", "description": "ISO 4217 currency code"}
		}
	}
	if s.Link != nil {
		props[LinkKey] = map[string]any{"type": "string", "description": "product page URL"}
	}
	item := map[string]any{"type": "object", "properties": props}
	if s.Rows == "" {
		return item
	}
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{ListKey: map[string]any{"type": "array", "items": item}},
		"required":   []string{ListKey},
	}
}

func jsonType(r Rule) map[string]any {
	switch r.Kind {
	case Percent:
		return map[string]any{"type": "number", "description": "percentage value, 0.07 for 0.07%"}
	case Number:
		return map[string]any{"type": "number"}
	case Amount:
		return map[string]any{"type": "number", "description": "amount in whole currency units"}
	case Holdings:
		cols := map[string]any{}
		for _, c := range r.Columns {
			if c.Field == ColWeight {
				cols[c.Field] = map[string]any{"type": "number", "description": "percentage of the fund"}
				continue
			}
			cols[c.Field] = map[string]any{"type": "string"}
		}
		return map[string]any{
			"type":        "array",
			"description": fmt.Sprintf("top %d holdings by weight", MaxHoldings),
			"items":       map[string]any{"type": "object", "properties": cols},
		}
	}
	return map[string]any{"type": "string"}
}

// FromJSON applies the schema to a structured extraction result. Numbers are
// taken as the service returned them; percentages are expected in percent
// and converted to ratios like their text form.
func (x Extractor) FromJSON(pageURL string, data map[string]any) (Result, error) {
	var res Result
	if x.Schema.Rows == "" {
		res.Records = append(res.Records, x.jsonRecord(pageURL, data, &res))
		return res, nil
	}
	raw, ok := data[ListKey]
	if !ok || raw == nil {
		return res, &provider.ExtractionError{Provider: x.Provider, URL: pageURL, Err: fmt.Errorf("result has no %q list", ListKey)}
	}
	items, ok := raw.([]any)
	if !ok {
		return res, &provider.ExtractionError{Provider: x.Provider, URL: pageURL, Field: ListKey, Err: errWrongType}
	}
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			res.Issues = append(res.Issues, &provider.ExtractionError{Provider: x.Provider, URL: pageURL, Field: ListKey, Value: fmt.Sprint(it), Err: errWrongType})
			continue
		}
		res.Records = append(res.Records, x.jsonRecord(pageURL, obj, &res))
	}
	return res, nil
}

func (x Extractor) jsonRecord(pageURL string, obj map[string]any, res *Result) provider.Record {
	rec := provider.NewRecord(x.Schema.Fields()...)
	for _, r := range x.Schema.Rules {
		x.applyJSON(&rec, pageURL, obj, r, res)
	}
	if x.Schema.Link != nil {
		if s, ok := obj[LinkKey].(string); ok && s != "" {
			rec.SetLink(resolve(pageURL, s))
		}
	}
	return rec
}

func (x Extractor) applyJSON(rec *provider.Record, pageURL string, obj map[string]any, r Rule, res *Result) {
	v := obj[r.Field]
	switch t := v.(type) {
	case nil:
	case string:
		if r.Kind == Holdings {
			res.Issues = append(res.Issues, x.issue(pageURL, r.Field, t, errWrongType))
			return
		}
		raw, ok := refine(t, r)
		if !ok {
			return
		}
		x.setText(rec, pageURL, r, raw, res)
		if set, _ := rec.Get(r.Field); set != nil && r.Kind == Amount && r.CurrencyField != "" {
			if c, ok := obj[r.CurrencyField].(string); ok && c != "" {
				rec.Set(r.CurrencyField, c)
			}
		}
	case float64:
		x.setNumber(rec, pageURL, obj, r, t, res)
	case []any:
		if r.Kind != Holdings {
			res.Issues = append(res.Issues, x.issue(pageURL, r.Field, fmt.Sprint(t), errWrongType))
			return
		}
		if hs := x.holdingsJSON(pageURL, r, t, res); len(hs) > 0 {
			rec.Set(r.Field, hs)
		}
	default:
		res.Issues = append(res.Issues, x.issue(pageURL, r.Field, fmt.Sprint(t), errWrongType))
	}
}

func (x Extractor) setNumber(rec *provider.Record, pageURL string, obj map[string]any, r Rule, v float64, res *Result) {
	switch r.Kind {
	case Text:
		rec.Set(r.Field, strconv.FormatFloat(v, 'f', -1, 64))
	case Percent:
		rec.Set(r.Field, percentRatio(v))
	case Number:
		rec.Set(r.Field, v)
	case Amount:
		v = math.Round(v)
		if math.IsNaN(v) || v >= float64(math.MaxInt64) || v < float64(math.MinInt64) {
			res.Issues = append(res.Issues, x.issue(pageURL, r.Field, strconv.FormatFloat(v, 'g', -1, 64), normalize.ErrOutOfRange))
			return
		}
		rec.Set(r.Field, int64(v))
		if c, ok := obj[r.CurrencyField].(string); ok && c != "" {
			rec.Set(r.CurrencyField, c)
		}
	default:
		res.Issues = append(res.Issues, x.issue(pageURL, r.Field, strconv.FormatFloat(v, 'f', -1, 64), errWrongType))
	}
}

func (x Extractor) holdingsJSON(pageURL string, r Rule, items []any, res *Result) []provider.Holding {
	limit := r.Limit
	if limit <= 0 {
		limit = MaxHoldings
	}
	var out []provider.Holding
	for _, it := range items {
		if len(out) >= limit {
			break
		}
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		var h provider.Holding
		for _, c := range r.Columns {
			switch t := obj[c.Field].(type) {
			case string:
				raw, ok := refine(t, c)
				if !ok {
					continue
				}
				if err := x.setColumn(&h, c.Field, raw); err != nil {
					res.Issues = append(res.Issues, x.issue(pageURL, r.Field+"."+c.Field, raw, err))
				}
			case float64:
				if c.Field == ColWeight {
					w := percentRatio(t)
					h.Weight = &w
				}
			}
		}
		if h.Name == nil && h.ISIN == nil {
			continue
		}
		out = append(out, h)
	}
	return out
}

// percentRatio converts a percentage number through its decimal text so
// 0.07 becomes exactly 0.0007.
func percentRatio(v float64) float64 {
	r, err := normalize.ParsePercent(strconv.FormatFloat(v, 'f', -1, 64), normalize.DecimalPoint)
	if err != nil {
		return v / 100
	}
	return r
}
