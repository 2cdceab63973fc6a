package provider_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"etfscraper/internal/provider"
)

func TestRecord_MarshalJSON_KeepsDeclaredOrderAndNulls(t *testing.T) {
	t.Parallel()

	// Arrange: fields declared out of alphabetical order, one left unset.
	r := provider.NewRecord("ticker", "name", "ter", "aum")
	r.Set("ticker", "AMUN1")
	r.Set("name", "Amundi S&P 500 <Acc>")
	r.Set("ter", 0.0015)

	// Act
	b, err := r.MarshalJSON()
	require.NoError(t, err)

	// Assert: order follows the declaration, HTML is not escaped, missing is null.
	require.Equal(t, `{"ticker":"AMUN1","name":"Amundi S&P 500 <Acc>","ter":0.0015,"aum":null}`, string(b))
}

func TestRecord_MarshalJSON_Holdings(t *testing.T) {
	t.Parallel()

	name, weight := "Apple Inc", 0.052
	r := provider.NewRecord("isin", "holdings")
	r.Set("holdings", []provider.Holding{{Name: &name, Weight: &weight}})

	b, err := json.Marshal(r)
	require.NoError(t, err)
	require.JSONEq(t, `{"isin":null,"holdings":[{"name":"Apple Inc","isin":null,"sector":null,"security_type":null,"country":null,"currency":null,"weight":0.052}]}`, string(b))
}

func TestRecord_UnmarshalJSON_KeepsOrder(t *testing.T) {
	t.Parallel()

	var r provider.Record
	require.NoError(t, json.Unmarshal([]byte(`{"z":1,"a":"x","m":null}`), &r))

	require.Equal(t, []string{"z", "a", "m"}, r.Keys())
	v, ok := r.Get("z")
	require.True(t, ok)
	require.Equal(t, float64(1), v)
	v, ok = r.Get("m")
	require.True(t, ok)
	require.Nil(t, v)
	require.Equal(t, "x", r.Text("a"))
}

func TestRecord_UnmarshalJSON_RejectsNonObject(t *testing.T) {
	t.Parallel()

	var r provider.Record
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
}

func TestRecord_WithProvider(t *testing.T) {
	t.Parallel()

	r := provider.NewRecord("isin", "name")
	r.Set("isin", "LU0274208692")
	r.SetLink("https://etf.dws.com/de-de/LU0274208692")

	tagged := r.WithProvider("xtrackers")

	// Assert: provider leads, the source record is untouched, the link travels.
	require.Equal(t, []string{"provider", "isin", "name"}, tagged.Keys())
	require.Equal(t, []string{"isin", "name"}, r.Keys())
	require.Equal(t, "xtrackers", tagged.Text("provider"))
	require.Equal(t, r.Link(), tagged.Link())

	// Assert: tagging twice does not duplicate the field.
	require.Equal(t, 3, tagged.WithProvider("dws").Len())
}

func TestRecord_Set_AppendsUnknownField(t *testing.T) {
	t.Parallel()

	r := provider.NewRecord("ticker")
	r.Set("isin", "IE00B4L5Y983")
	r.Set("ticker", "EUNL")

	require.Equal(t, []string{"ticker", "isin"}, r.Keys())
	require.Equal(t, "EUNL", r.Text("ticker"))
}

func TestErrors_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	var err error = fmt.Errorf("amundi: %w", &provider.FetchError{URL: "https://example.test", StatusCode: 429, RateLimited: true, Err: cause})

	var fe *provider.FetchError
	require.ErrorAs(t, err, &fe)
	require.True(t, fe.RateLimited)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "rate limited")

	err = &provider.ExtractionError{Provider: "ishares", URL: "https://example.test", Field: "ter", Value: "abc", Err: cause}
	var ee *provider.ExtractionError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "ter", ee.Field)
	require.Contains(t, err.Error(), `"abc"`)
}
