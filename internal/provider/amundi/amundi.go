// Package amundi reads the Amundi ETF product finder (German professional site).
package amundi

import (
	"strings"

	"etfscraper/internal/extract"
	"etfscraper/internal/normalize"
	"etfscraper/internal/provider"
	"etfscraper/internal/provider/etfsite"
)

const (
	Name              = "amundi"
	DefaultListingURL = "https://www.amundietf.de/de/professionell/etf-products/search"
)

const rows = "div.FinderResultsSection__Datatable table tbody tr"

const prompt = "Extract the fund's ISIN, its fund volume with the ISO currency code and the ten largest " +
	"holdings from the composition section. Weights are percentages of the fund."

// ListingSchema reads one finder table row per fund.
func ListingSchema() extract.Schema {
	return extract.Schema{
		Rows:   rows,
		Locale: normalize.DecimalComma,
		Link:   &extract.Rule{Selector: "td a[href]", Attr: "href"},
		Rules: []extract.Rule{
			{Field: "ticker", Selector: "td[data-label='Ticker']", Or: &extract.Rule{Selector: "td.ticker"}},
			{Field: "name", Selector: "td a[href]"},
			{
				Field:    "ter",
				Selector: "td[data-label='TER']",
				Kind:     extract.Percent,
				Or:       &extract.Rule{Selector: "td[data-label='Laufende Kosten']"},
			},
		},
	}
}

// DetailSchema reads a product page. The ISIN block reads "ISIN / WKN".
func DetailSchema() extract.Schema {
	return extract.Schema{
		Locale: normalize.DecimalComma,
		Rules: []extract.Rule{
			{Field: "isin", Selector: "div.m-isin-wkn", Transform: beforeSlash},
			{
				Field:         "aum",
				Selector:      "div.ProductHero__keyFigure:contains('Fondsvolumen') .ProductHero__keyFigureValue",
				Kind:          extract.Amount,
				CurrencyField: "aum_currency",
			},
			{
				Field:    "holdings",
				Selector: "table.top-holdings tbody tr",
				Kind:     extract.Holdings,
				Columns:  holdingColumns(),
				Or: &extract.Rule{
					Field:    "holdings",
					Selector: "table tbody tr",
					Kind:     extract.Holdings,
					Columns:  holdingColumns(),
				},
			},
		},
	}
}

// Composition tables list name, sector, country and weight.
func holdingColumns() []extract.Rule {
	return []extract.Rule{
		{Field: extract.ColName, Selector: "td:nth-child(1)"},
		{Field: extract.ColSector, Selector: "td:nth-child(2)"},
		{Field: extract.ColCountry, Selector: "td:nth-child(3)"},
		{Field: extract.ColWeight, Selector: "td:nth-child(4)"},
	}
}

func beforeSlash(s string) string {
	before, _, _ := strings.Cut(s, "/")
	return before
}

// New returns the Amundi extractor.
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
			{"type": "wait", "selector": rows},
		},
		DetailActions: []provider.Action{
			{"type": "wait", "milliseconds": 2000},
		},
		Options: opts,
	}, f)
}
