package aggregate

import (
	"sort"
	"strings"

	"etfscraper/internal/provider"
)

// Result is what one provider produced in a run.
type Result struct {
	Provider string
	Records  []provider.Record
	Err      error
}

// aliasMap normalizes the provider spellings used in flags, query strings,
// file names and site branding.
var aliasMap = map[string]string{
	"amundi":        "amundi",
	"amundi etf":    "amundi",
	"amundietf":     "amundi",
	"ishares":       "ishares",
	"blackrock":     "ishares",
	"vanguard":      "vanguard",
	"xtrackers":     "xtrackers",
	"dws":           "xtrackers",
	"dws xtrackers": "xtrackers",
	"dws-xtrackers": "xtrackers",
}

// NormalizeProvider returns the canonical provider name for s, or "" when s
// names no known provider. Case and surrounding spaces are ignored.
func NormalizeProvider(s string) string {
	return aliasMap[strings.ToLower(strings.TrimSpace(s))]
}

// Combine concatenates the records of successful providers in input order.
// With tag set, each record gets a leading "provider" field. Failed
// providers are returned by name, sorted.
func Combine(results []Result, tag bool) (records []provider.Record, failed []string) {
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Provider)
			continue
		}
		for _, rec := range r.Records {
			if tag {
				rec = rec.WithProvider(r.Provider)
			}
			records = append(records, rec)
		}
	}
	sort.Strings(failed)
	return records, failed
}

// Counts returns the number of records per successful provider.
func Counts(results []Result) map[string]int {
	out := make(map[string]int, len(results))
	for _, r := range results {
		if r.Err == nil {
			out[r.Provider] += len(r.Records)
		}
	}
	return out
}
