package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"etfscraper/internal/normalize"
)

func TestParsePercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		loc  normalize.Locale
		want float64
	}{
		{"0.07%", normalize.DecimalPoint, 0.0007},
		{"0.07%", normalize.DecimalComma, 0.0007},
		{"0,15 %", normalize.DecimalComma, 0.0015},
		{"0,15 %", normalize.DecimalPoint, 0.0015},
		{"TER 0.20", normalize.DecimalPoint, 0.002},
		{"12,5%", normalize.DecimalComma, 0.125},
		{"-1.5%", normalize.DecimalPoint, -0.015},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in+"/"+tt.loc.String(), func(t *testing.T) {
			t.Parallel()

			got, err := normalize.ParsePercent(tt.in, tt.loc)
			require.NoError(t, err)
			require.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestParsePercent_NoDigits(t *testing.T) {
	t.Parallel()

	// Act: a placeholder carries no number.
	_, err := normalize.ParsePercent("n/a", normalize.DecimalPoint)

	// Assert: the sentinel is wrapped.
	require.ErrorIs(t, err, normalize.ErrNoNumber)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		loc  normalize.Locale
		want normalize.Amount
	}{
		{"grouped point locale", "1,234,567 EUR", normalize.DecimalPoint, normalize.Amount{Value: 1234567, Currency: "EUR"}},
		{"grouped comma locale", "1,234,567 EUR", normalize.DecimalComma, normalize.Amount{Value: 1234567, Currency: "EUR"}},
		{"german millions", "EUR 1.234,5 Mio.", normalize.DecimalComma, normalize.Amount{Value: 1234500000, Currency: "EUR"}},
		{"billions suffix", "USD 12.5bn", normalize.DecimalPoint, normalize.Amount{Value: 12500000000, Currency: "USD"}},
		{"euro symbol", "€ 3,2 Mrd", normalize.DecimalComma, normalize.Amount{Value: 3200000000, Currency: "EUR"}},
		{"dollar symbol", "$48,210.77", normalize.DecimalPoint, normalize.Amount{Value: 48211, Currency: "USD"}},
		{"swiss grouping", "CHF 1'234.50", normalize.DecimalPoint, normalize.Amount{Value: 1235, Currency: "CHF"}},
		{"no currency", "987654", normalize.DecimalComma, normalize.Amount{Value: 987654}},
		{"label is not a currency", "AUM 2,000,000", normalize.DecimalPoint, normalize.Amount{Value: 2000000}},
		{"no-break spaces around scale", "1.234,56\u00a0Mio.\u00a0EUR", normalize.DecimalComma, normalize.Amount{Value: 1234560000, Currency: "EUR"}},
		{"space grouped", "1 234 567 EUR", normalize.DecimalPoint, normalize.Amount{Value: 1234567, Currency: "EUR"}},
		{"narrow no-break grouped", "1\u202f234\u202f567 EUR", normalize.DecimalComma, normalize.Amount{Value: 1234567, Currency: "EUR"}},
		{"space grouped with decimals", "EUR 2 345,6 Mio.", normalize.DecimalComma, normalize.Amount{Value: 2345600000, Currency: "EUR"}},
		{"separate numbers stay apart", "12 2024", normalize.DecimalPoint, normalize.Amount{Value: 12}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := normalize.ParseAmount(tt.in, tt.loc)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseAmount_OutOfRange(t *testing.T) {
	t.Parallel()

	_, err := normalize.ParseAmount("99999999999 Mrd. EUR", normalize.DecimalPoint)

	require.ErrorIs(t, err, normalize.ErrOutOfRange)
}

func TestParseNumber_AmbiguousSeparator(t *testing.T) {
	t.Parallel()

	// Assert: a lone separator before three digits follows the locale.
	got, err := normalize.ParseNumber("12.345", normalize.DecimalComma)
	require.NoError(t, err)
	require.Equal(t, "12345", got.String())

	got, err = normalize.ParseNumber("12.345", normalize.DecimalPoint)
	require.NoError(t, err)
	require.Equal(t, "12.345", got.String())

	got, err = normalize.ParseNumber("1,234", normalize.DecimalPoint)
	require.NoError(t, err)
	require.Equal(t, "1234", got.String())

	got, err = normalize.ParseNumber("1,234", normalize.DecimalComma)
	require.NoError(t, err)
	require.Equal(t, "1.234", got.String())
}

func TestIsMissing(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "  ", "-", "--", "—", "N/A", "n/a", "k.A.", " k. a. "} {
		require.Truef(t, normalize.IsMissing(s), "expected %q to be missing", s)
	}
	for _, s := range []string{"0", "0,00%", "IE00B4L5Y983", "Amundi"} {
		require.Falsef(t, normalize.IsMissing(s), "expected %q to be present", s)
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "iShares Core MSCI World", normalize.CleanText("  iShares\n  Core\tMSCI World "))
	require.Equal(t, "", normalize.CleanText("\n\t "))
	require.Equal(t, "1.234,56 Mio. EUR", normalize.CleanText("1.234,56\u00a0Mio.\u202fEUR"))
}

func TestDetectCurrency(t *testing.T) {
	t.Parallel()

	require.Equal(t, "GBP", normalize.DetectCurrency("£1.2m"))
	require.Equal(t, "USD", normalize.DetectCurrency("US$ 100"))
	require.Equal(t, "EUR", normalize.DetectCurrency("Fondsvolumen 12 MIO EUR"))
	require.Equal(t, "", normalize.DetectCurrency("TER 0.07%"))
}
