// Package xtrackers reads the DWS Xtrackers product finder.
package xtrackers

import (
	"regexp"

	"etfscraper/internal/extract"
	"etfscraper/internal/normalize"
	"etfscraper/internal/provider"
	"etfscraper/internal/provider/etfsite"
)

const (
	Name              = "xtrackers"
	DefaultListingURL = "https://etf.dws.com/de-de/produktfinder/"
)

// Product links look like /de-de/LU0274208692-msci-world-swap-1c/.
var linkISIN = regexp.MustCompile(`/de-de/((?:LU|IE)[0-9A-Z]{9}[0-9])`)

const productLink = "td a.d-base-link[href*='/de-de/LU'], td a.d-base-link[href*='/de-de/IE']"

const prompt = "Extract the fund's exchange ticker, fund volume with ISO currency code and the ten " +
	"largest constituents with their weight in percent of the fund."

func ListingSchema() extract.Schema {
	return extract.Schema{
		Rows:   "tr:has(a.d-base-link[href*='/de-de/LU']), tr:has(a.d-base-link[href*='/de-de/IE'])",
		Locale: normalize.DecimalComma,
		Link:   &extract.Rule{Selector: productLink, Attr: "href"},
		Rules: []extract.Rule{
			{Field: "isin", Selector: productLink, Attr: "href", Pattern: linkISIN},
			{Field: "name", Selector: productLink},
			{Field: "ter", Selector: "td[data-column='ter']", Kind: extract.Percent, Or: &extract.Rule{Selector: "td.ter"}},
		},
	}
}

func DetailSchema() extract.Schema {
	return extract.Schema{
		Locale: normalize.DecimalComma,
		Rules: []extract.Rule{
			{Field: "ticker", Selector: "div.product-header__identifier__row:contains('Ticker') strong"},
			{
				Field:         "aum",
				Selector:      "div.product-key-facts__row:contains('Fondsvolumen') strong",
				Kind:          extract.Amount,
				CurrencyField: "aum_currency",
			},
			{
				Field:    "holdings",
				Selector: "table.constituents tbody tr",
				Kind:     extract.Holdings,
				Columns: []extract.Rule{
					{Field: extract.ColName, Selector: "td:nth-child(1)"},
					{Field: extract.ColISIN, Selector: "td:nth-child(2)"},
					{Field: extract.ColCountry, Selector: "td:nth-child(3)"},
					{Field: extract.ColWeight, Selector: "td:nth-child(4)"},
				},
			},
		},
	}
}

// New returns the Xtrackers extractor.
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
			{"type": "wait", "selector": productLink},
		},
		DetailActions: []provider.Action{
			{"type": "wait", "selector": "h1#product-header-title"},
		},
		Options: opts,
	}, f)
}
