package etfsite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"etfscraper/internal/extract"
	"etfscraper/internal/normalize"
	"etfscraper/internal/provider"
	"etfscraper/internal/provider/etfsite"
	"etfscraper/internal/provider/providertest"
)

const listingURL = "https://funds.example.test/list"

const listingHTML = `<table><tbody>
<tr><td class="t">AAA</td><td class="n"><a href="/p/aaa">Alpha ETF</a></td><td class="ter">0.07%</td></tr>
<tr><td class="t">BBB</td><td class="n"><a href="/p/bbb">Beta ETF</a></td><td class="ter">n/a</td></tr>
<tr><td class="t">CCC</td><td class="n"><a href="/p/aaa">Alpha ETF (Acc)</a></td><td class="ter">0.10%</td></tr>
</tbody></table>`

const detailHTML = `<div class="isin">IE00B4L5Y983</div><div class="aum">EUR 1.234,5 Mio.</div>`

func testConfig(maxDetails int) etfsite.Config {
	return etfsite.Config{
		Name: "test",
		Listing: extract.Schema{
			Rows: "tbody tr",
			Link: &extract.Rule{Selector: "td.n a", Attr: "href"},
			Rules: []extract.Rule{
				{Field: "ticker", Selector: "td.t"},
				{Field: "name", Selector: "td.n"},
				{Field: "ter", Selector: "td.ter", Kind: extract.Percent},
			},
		},
		Detail: extract.Schema{
			Locale: normalize.DecimalComma,
			Rules: []extract.Rule{
				{Field: "isin", Selector: "div.isin"},
				{Field: "aum", Selector: "div.aum", Kind: extract.Amount, CurrencyField: "aum_currency"},
			},
		},
		Options: etfsite.Options{ListingURL: listingURL, MaxDetails: maxDetails},
	}
}

func listingPage() *provider.Page {
	return &provider.Page{URL: listingURL, HTML: listingHTML, StatusCode: 200}
}

func TestExtract_ListingOnly(t *testing.T) {
	t.Parallel()

	// Arrange: no product pages may be requested.
	ctrl := gomock.NewController(t)
	f := providertest.NewMockFetcher(ctrl)
	f.EXPECT().
		Fetch(gomock.Any(), provider.FetchRequest{URL: listingURL, Format: provider.FormatHTML}).
		Return(listingPage(), nil).
		Times(1)
	e := etfsite.New(testConfig(0), f)

	// Act
	recs, err := e.Extract(testContext(t))

	// Assert
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, []string{"ticker", "name", "ter"}, e.Fields())
	for _, r := range recs {
		require.Equal(t, e.Fields(), r.Keys())
	}
	b, err := recs[1].MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"ticker":"BBB","name":"Beta ETF","ter":null}`, string(b))
	require.Equal(t, "https://funds.example.test/p/bbb", recs[1].Link())
}

func TestExtract_EnrichesFirstUniqueLinks(t *testing.T) {
	t.Parallel()

	// Arrange: two unique links, only the first is enriched.
	ctrl := gomock.NewController(t)
	f := providertest.NewMockFetcher(ctrl)
	gomock.InOrder(
		f.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(listingPage(), nil),
		f.EXPECT().
			Fetch(gomock.Any(), provider.FetchRequest{URL: "https://funds.example.test/p/aaa", Format: provider.FormatHTML}).
			Return(&provider.Page{URL: "https://funds.example.test/p/aaa", HTML: detailHTML}, nil),
	)
	e := etfsite.New(testConfig(1), f)

	// Act
	recs, err := e.Extract(testContext(t))

	// Assert: records sharing the product link share its details.
	require.NoError(t, err)
	require.Equal(t, []string{"ticker", "name", "ter", "isin", "aum", "aum_currency"}, recs[0].Keys())
	for _, i := range []int{0, 2} {
		isin, _ := recs[i].Get("isin")
		require.Equal(t, "IE00B4L5Y983", isin)
		aum, _ := recs[i].Get("aum")
		require.Equal(t, int64(1234500000), aum)
		require.Equal(t, "EUR", recs[i].Text("aum_currency"))
	}
	isin, ok := recs[1].Get("isin")
	require.True(t, ok)
	require.Nil(t, isin)
}

func TestExtract_DetailFailureLeavesNulls(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	f := providertest.NewMockFetcher(ctrl)
	f.EXPECT().Fetch(gomock.Any(), provider.FetchRequest{URL: listingURL, Format: provider.FormatHTML}).Return(listingPage(), nil)
	f.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		Return(nil, &provider.FetchError{StatusCode: 500, Err: errors.New("boom")}).
		Times(2)
	e := etfsite.New(testConfig(5), f)

	recs, err := e.Extract(testContext(t))

	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, r := range recs {
		v, ok := r.Get("aum")
		require.True(t, ok)
		require.Nil(t, v)
	}
}

func TestExtract_ListingFetchError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	f := providertest.NewMockFetcher(ctrl)
	f.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		Return(nil, &provider.FetchError{URL: listingURL, StatusCode: 429, RateLimited: true, Err: errors.New("slow down")})
	e := etfsite.New(testConfig(3), f)

	recs, err := e.Extract(testContext(t))

	require.Nil(t, recs)
	var fe *provider.FetchError
	require.ErrorAs(t, err, &fe)
	require.True(t, fe.RateLimited)
}

func TestExtract_NoRows(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	f := providertest.NewMockFetcher(ctrl)
	f.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(&provider.Page{URL: listingURL, HTML: "<p>maintenance</p>"}, nil)
	e := etfsite.New(testConfig(0), f)

	_, err := e.Extract(testContext(t))

	var xe *provider.ExtractionError
	require.ErrorAs(t, err, &xe)
	require.ErrorIs(t, err, etfsite.ErrNoRows)
	require.Equal(t, "test", xe.Provider)
}

func TestExtract_StructuredDetails(t *testing.T) {
	t.Parallel()

	// Arrange: product pages are read through the service's JSON extraction.
	cfg := testConfig(1)
	cfg.DetailMode = provider.FormatJSON
	cfg.Prompt = "Extract the fund facts."
	cfg.ResolveLink = func(s string) string { return s + "?lang=en" }
	ctrl := gomock.NewController(t)
	f := providertest.NewMockFetcher(ctrl)
	f.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(listingPage(), nil)
	f.EXPECT().
		Fetch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req provider.FetchRequest) (*provider.Page, error) {
			require.Equal(t, "https://funds.example.test/p/aaa?lang=en", req.URL)
			require.Equal(t, provider.FormatJSON, req.Format)
			require.Equal(t, "Extract the fund facts.", req.Prompt)
			require.NotNil(t, req.Schema)
			return &provider.Page{URL: req.URL, Data: map[string]any{"isin": "IE00B4L5Y983", "aum": 2.5e9, "aum_currency": "USD"}}, nil
		})
	e := etfsite.New(cfg, f)

	// Act
	recs, err := e.Extract(testContext(t))

	// Assert
	require.NoError(t, err)
	aum, _ := recs[0].Get("aum")
	require.Equal(t, int64(2500000000), aum)
	require.Equal(t, "USD", recs[0].Text("aum_currency"))
	require.Equal(t, "https://funds.example.test/p/aaa?lang=en", recs[2].Link())
}
