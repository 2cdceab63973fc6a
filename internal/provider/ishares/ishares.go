// Package ishares reads the iShares product list (German retail site).
package ishares

import (
	"net/url"

	"etfscraper/internal/extract"
	"etfscraper/internal/normalize"
	"etfscraper/internal/provider"
	"etfscraper/internal/provider/etfsite"
)

const (
	Name              = "ishares"
	DefaultListingURL = "https://www.ishares.com/de/privatanleger/de/produkte/etf-investments" +
		"#/?productView=all&pageNumber=1&sortColumn=totalFundSizeInMillions&sortDirection=desc&dataView=keyFacts&keyFacts=all"
)

// Product pages skip the investor type and locale gates with these parameters.
const productQuery = "switchLocale=y&siteEntryPassthrough=true"

const prompt = "Extract the ten largest holdings of this fund from the holdings section: name, ISIN, " +
	"sector, asset class and weight in percent of the fund."

// ListingSchema reads the key facts view of the product screener.
func ListingSchema() extract.Schema {
	return extract.Schema{
		Rows:   "tr:has(a.link-to-product-page)",
		Locale: normalize.DecimalComma,
		Link:   &extract.Rule{Selector: "a.link-to-product-page", Attr: "href"},
		Rules: []extract.Rule{
			{Field: "ticker", Selector: "td.colLocalExchangeTicker", Or: &extract.Rule{Selector: "td.colTicker"}},
			{Field: "name", Selector: "a.link-to-product-page"},
			{Field: "isin", Selector: "td.colIsin"},
			{Field: "ter", Selector: "td.colTotalExpenseRatio", Kind: extract.Percent, Or: &extract.Rule{Selector: "td.colTer"}},
			{
				Field:         "aum",
				Selector:      "td.colTotalNetAssets",
				Kind:          extract.Amount,
				CurrencyField: "aum_currency",
				// The screener's size column is in millions without a unit.
				Or: &extract.Rule{Selector: "td.colTotalFundSizeInMillions", Transform: func(s string) string { return s + " Mio." }},
			},
		},
	}
}

// DetailSchema reads the holdings of a product page: the full holdings
// table when rendered, the top ten tab otherwise.
func DetailSchema() extract.Schema {
	return extract.Schema{
		Locale: normalize.DecimalComma,
		Rules: []extract.Rule{
			{
				Field:    "holdings",
				Selector: "table#allHoldingsTable tbody tr",
				Kind:     extract.Holdings,
				Columns: []extract.Rule{
					{Field: extract.ColName, Selector: "td.colIssueName", Or: &extract.Rule{Selector: "td.colAssetClassName"}},
					{Field: extract.ColISIN, Selector: "td.colIsin"},
					{Field: extract.ColSector, Selector: "td.colSector"},
					{Field: extract.ColSecurityType, Selector: "td.colSecurityType"},
					{Field: extract.ColWeight, Selector: "td.colFundPercentage"},
				},
				Or: &extract.Rule{
					Field:    "holdings",
					Selector: "#tabsTen-largest table.holdingTable tbody tr",
					Kind:     extract.Holdings,
					Columns: []extract.Rule{
						{Field: extract.ColName, Selector: "td.colName"},
						{Field: extract.ColWeight, Selector: "td.colFundPercentage"},
					},
				},
			},
		},
	}
}

// ProductURL drops the screener's tracking query and fragment from a
// product link and adds the passthrough parameters.
func ProductURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	u.RawQuery = productQuery
	u.Fragment = ""
	return u.String()
}

// New returns the iShares extractor.
func New(opts etfsite.Options, f provider.Fetcher) *etfsite.Extractor {
	if opts.ListingURL == "" {
		opts.ListingURL = DefaultListingURL
	}
	return etfsite.New(etfsite.Config{
		Name:        Name,
		Listing:     ListingSchema(),
		Detail:      DetailSchema(),
		Prompt:      prompt,
		ResolveLink: ProductURL,
		ListingActions: []provider.Action{
			{"type": "wait", "selector": "a.link-to-product-page"},
		},
		DetailActions: []provider.Action{
			{"type": "wait", "milliseconds": 2000},
		},
		Options: opts,
	}, f)
}
