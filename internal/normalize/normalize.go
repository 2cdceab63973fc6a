// Package normalize turns the display strings found on provider pages into
// typed values. Percentages become ratios (0.07% -> 0.0007) and amounts
// become integers with the currency split off.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Locale tells the number parser which separator is the decimal mark when a
// number alone is ambiguous (a single separator followed by three digits).
type Locale int

const (
	// DecimalPoint: 1,234.56 (Vanguard).
	DecimalPoint Locale = iota
	// DecimalComma: 1.234,56 (German pages of Amundi, iShares, Xtrackers).
	DecimalComma
)

func (l Locale) String() string {
	if l == DecimalComma {
		return "decimal-comma"
	}
	return "decimal-point"
}

var (
	// ErrNoNumber is returned when the input carries no digits at all.
	ErrNoNumber = errors.New("no number found")
	// ErrOutOfRange is returned for amounts that do not fit an int64.
	ErrOutOfRange = errors.New("amount out of range")
)

var (
	// Space-grouped thousands ("1 234 567") need a leading group of at most
	// three digits so that "12 2024" stays two numbers.
	numberToken     = regexp.MustCompile(`[-+]?(?:\d{1,3}(?: \d{3})+\b|\d)[\d.,']*`)
	innerWhitespace = regexp.MustCompile(`\s+`)
	isoCurrency     = regexp.MustCompile(`\b[A-Z]{3}\b`)
	scaleWord       = regexp.MustCompile(`(?i)^[\s\p{Zs}]*(mio|mn|millionen|million|mrd|bn|milliarden|billion|tsd|thousand|m|b|k)\b\.?`)
)

// wideSpaces are the no-break and thin spaces pages put between digit groups
// and units. They are folded to a plain space before parsing.
var wideSpaces = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2009", " ", "\u2007", " ")

var (
	hundred  = decimal.NewFromInt(100)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

var scales = map[string]decimal.Decimal{
	"k":          decimal.NewFromInt(1_000),
	"tsd":        decimal.NewFromInt(1_000),
	"thousand":   decimal.NewFromInt(1_000),
	"m":          decimal.NewFromInt(1_000_000),
	"mn":         decimal.NewFromInt(1_000_000),
	"mio":        decimal.NewFromInt(1_000_000),
	"million":    decimal.NewFromInt(1_000_000),
	"millionen":  decimal.NewFromInt(1_000_000),
	"b":          decimal.NewFromInt(1_000_000_000),
	"bn":         decimal.NewFromInt(1_000_000_000),
	"mrd":        decimal.NewFromInt(1_000_000_000),
	"billion":    decimal.NewFromInt(1_000_000_000),
	"milliarden": decimal.NewFromInt(1_000_000_000),
}

// currencies limits detection to codes that appear on fund pages, so labels
// like "TER" or "NAV" are not mistaken for a currency.
var currencies = map[string]struct{}{
	"AUD": {}, "CAD": {}, "CHF": {}, "CNH": {}, "CNY": {}, "DKK": {}, "EUR": {}, "GBP": {},
	"GBX": {}, "HKD": {}, "JPY": {}, "NOK": {}, "PLN": {}, "SEK": {}, "SGD": {}, "USD": {},
}

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
	{"¥", "JPY"},
}

// missing holds placeholder spellings that mean "no value" on provider pages.
var missing = map[string]struct{}{
	"":      {},
	"-":     {},
	"--":    {},
	"–":     {},
	"—":     {},
	"n/a":   {},
	"na":    {},
	"k.a.":  {},
	"k. a.": {},
}

// CleanText collapses runs of whitespace, drops non-printable runes and trims.
// No-break and thin spaces become plain spaces.
func CleanText(s string) string {
	var b strings.Builder
	for _, r := range wideSpaces.Replace(s) {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(b.String(), " "))
}

// IsMissing reports whether s is empty or a placeholder such as "n/a" or "-".
func IsMissing(s string) bool {
	_, ok := missing[strings.ToLower(CleanText(s))]
	return ok
}

// ParseNumber extracts the first number in s. Thousands separators are
// inferred from the text; loc only decides the ambiguous single-separator case.
func ParseNumber(s string, loc Locale) (decimal.Decimal, error) {
	_, d, err := parseNumber(wideSpaces.Replace(s), loc)
	return d, err
}

// parseNumber expects s with wide spaces already folded; end indexes into it.
func parseNumber(s string, loc Locale) (end int, d decimal.Decimal, err error) {
	idx := numberToken.FindStringIndex(s)
	if idx == nil {
		return 0, decimal.Zero, fmt.Errorf("%q: %w", s, ErrNoNumber)
	}
	tok := s[idx[0]:idx[1]]
	canon := canonical(tok, loc)
	d, err = decimal.NewFromString(canon)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("parse number %q: %w", tok, err)
	}
	return idx[1], d, nil
}

func canonical(tok string, loc Locale) string {
	tok = strings.NewReplacer("'", "", " ", "").Replace(tok)
	tok = strings.TrimRight(tok, ".,")
	commas := strings.Count(tok, ",")
	dots := strings.Count(tok, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(tok, ",") > strings.LastIndex(tok, ".") {
			return strings.Replace(strings.ReplaceAll(tok, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(tok, ",", "")
	case commas > 1:
		return strings.ReplaceAll(tok, ",", "")
	case dots > 1:
		return strings.ReplaceAll(tok, ".", "")
	case commas == 1:
		if loc == DecimalPoint && digitsAfter(tok, ",") == 3 {
			return strings.ReplaceAll(tok, ",", "")
		}
		return strings.Replace(tok, ",", ".", 1)
	case dots == 1:
		if loc == DecimalComma && digitsAfter(tok, ".") == 3 {
			return strings.ReplaceAll(tok, ".", "")
		}
		return tok
	}
	return tok
}

func digitsAfter(tok, sep string) int {
	return len(tok) - strings.LastIndex(tok, sep) - 1
}

// ParsePercent reads a percentage ("0.07%", "0,07 %", "0.07") and returns it
// as a ratio. A missing "%" sign is tolerated: the field is known to be a
// percentage.
func ParsePercent(s string, loc Locale) (float64, error) {
	d, err := ParseNumber(s, loc)
	if err != nil {
		return 0, err
	}
	return d.Div(hundred).InexactFloat64(), nil
}

// Amount is a monetary figure with its currency split off.
type Amount struct {
	Value    int64
	Currency string
}

// ParseAmount reads values such as "1,234,567 EUR" or "EUR 1.234,5 Mio.".
// Scale words (Mio, Mrd, bn, k, ...) directly after the number are applied
// and the result is rounded to a whole unit. Currency is empty when the text
// names none. Digit groups may be separated by spaces, including no-break
// and thin spaces ("1 234 567", "1.234,56\u00a0Mio.").
func ParseAmount(s string, loc Locale) (Amount, error) {
	s = wideSpaces.Replace(s)
	end, d, err := parseNumber(s, loc)
	if err != nil {
		return Amount{}, err
	}
	if m := scaleWord.FindStringSubmatch(s[end:]); m != nil {
		d = d.Mul(scales[strings.ToLower(m[1])])
	}
	d = d.Round(0)
	if d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
		return Amount{}, fmt.Errorf("%q: %w", s, ErrOutOfRange)
	}
	return Amount{Value: d.IntPart(), Currency: DetectCurrency(s)}, nil
}

// DetectCurrency returns the ISO code named in s, either literally ("EUR") or
// through a symbol ("€").
func DetectCurrency(s string) string {
	for _, code := range isoCurrency.FindAllString(s, -1) {
		if _, ok := currencies[code]; ok {
			return code
		}
	}
	for _, cs := range currencySymbols {
		if strings.Contains(s, cs.symbol) {
			return cs.code
		}
	}
	return ""
}
