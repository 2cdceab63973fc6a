// Package vanguard reads the Vanguard (US) ETF list.
package vanguard

import (
	"regexp"
	"strings"

	"etfscraper/internal/extract"
	"etfscraper/internal/normalize"
	"etfscraper/internal/provider"
	"etfscraper/internal/provider/etfsite"
)

const (
	Name              = "vanguard"
	DefaultListingURL = "https://investor.vanguard.com/investment-products/list/etfs"
)

var isinPattern = regexp.MustCompile(`\b([A-Z]{2}[A-Z0-9]{9}[0-9])\b`)

const prompt = "Extract the fund's ISIN and its ten largest holdings from the portfolio section " +
	"with the weight of each holding in percent of the fund."

// ListingSchema reads the rows of the product list. Cells are tagged with
// data-rpa-tag-id attributes.
func ListingSchema() extract.Schema {
	return extract.Schema{
		Rows:   "tr[data-rpa-tag-id]",
		Locale: normalize.DecimalPoint,
		Link:   &extract.Rule{Selector: "a[data-rpa-tag-id='longName']", Attr: "href"},
		Rules: []extract.Rule{
			{
				Field:     "ticker",
				Selector:  "[data-rpa-tag-id='symbol']",
				Transform: firstWord,
				Or:        &extract.Rule{Selector: "[data-rpa-tag-id='dashboard-symbol']", Transform: firstWord},
			},
			{Field: "name", Selector: "a[data-rpa-tag-id='longName']"},
			{Field: "ter", Selector: "[data-rpa-tag-id='expenseRatio']", Kind: extract.Percent},
			{Field: "aum", Selector: "[data-rpa-tag-id='fundAssets']", Kind: extract.Amount, CurrencyField: "aum_currency"},
		},
	}
}

// DetailSchema reads a fund profile page.
func DetailSchema() extract.Schema {
	return extract.Schema{
		Locale: normalize.DecimalPoint,
		Rules: []extract.Rule{
			{Field: "isin", Selector: "[data-rpa-tag-id='isin']", Pattern: isinPattern},
			{
				Field:    "holdings",
				Selector: "table[data-rpa-tag-id='holdings'] tbody tr",
				Kind:     extract.Holdings,
				Columns: []extract.Rule{
					{Field: extract.ColName, Selector: "td:nth-child(1)"},
					{Field: extract.ColSector, Selector: "td[data-rpa-tag-id='sector']"},
					{Field: extract.ColWeight, Selector: "td:last-child"},
				},
			},
		},
	}
}

// firstWord keeps "VTI" of "VTI Vanguard Total Stock Market ETF".
func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// New returns the Vanguard extractor.
func New(opts etfsite.Options, f provider.Fetcher) *etfsite.Extractor {
	if opts.ListingURL == "" {
		opts.ListingURL = DefaultListingURL
	}
	return etfsite.New(etfsite.Config{
		Name:    Name,
		Listing: ListingSchema(),
		Detail:  DetailSchema(),
		Prompt:  prompt,
		ListingActions: []provider.Action{
			{"type": "wait", "selector": "tr[data-rpa-tag-id]"},
		},
		DetailActions: []provider.Action{
			{"type": "wait", "selector": "h1[data-rpa-tag-id='dashboard-symbol']"},
		},
		Options: opts,
	}, f)
}
