package output_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"etfscraper/internal/output"
	"etfscraper/internal/provider"
)

func records() []provider.Record {
	a := provider.NewRecord("ticker", "name", "ter")
	a.Set("ticker", "AMUN1")
	a.Set("name", "Amundi Test ETF")
	a.Set("ter", 0.0015)
	b := provider.NewRecord("ticker", "name", "ter")
	b.Set("ticker", "SXR8")
	b.Set("name", "iShares Core S&P 500 <Acc>")
	return []provider.Record{a, b}
}

func TestWrite_Format(t *testing.T) {
	t.Parallel()

	// Arrange
	w := &output.Writer{Dir: filepath.Join(t.TempDir(), "nested", "output")}

	// Act
	path, err := w.Write("amundi", records()[:1])

	// Assert
	require.NoError(t, err)
	require.Equal(t, filepath.Join(w.Dir, "amundi.json"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[\n  {\n    \"ticker\": \"AMUN1\",\n    \"name\": \"Amundi Test ETF\",\n    \"ter\": 0.0015\n  }\n]\n", string(b))
}

func TestWrite_IsIdempotent(t *testing.T) {
	t.Parallel()

	w := &output.Writer{Dir: t.TempDir()}

	p1, err := w.Write("combined", records())
	require.NoError(t, err)
	first, err := os.ReadFile(p1)
	require.NoError(t, err)

	p2, err := w.Write("combined", records())
	require.NoError(t, err)
	second, err := os.ReadFile(p2)
	require.NoError(t, err)

	require.Equal(t, p1, p2)
	require.Equal(t, first, second)
	require.Contains(t, string(first), `"iShares Core S&P 500 <Acc>"`)
	require.Contains(t, string(first), `"ter": null`)

	entries, err := os.ReadDir(w.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWrite_Overwrites(t *testing.T) {
	t.Parallel()

	w := &output.Writer{Dir: t.TempDir()}
	_, err := w.Write("vanguard", records())
	require.NoError(t, err)

	path, err := w.Write("vanguard", nil)

	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(b))
}

func TestWrite_Timestamped(t *testing.T) {
	t.Parallel()

	w := &output.Writer{
		Dir:         t.TempDir(),
		Timestamped: true,
		Now:         func() time.Time { return time.Date(2025, 3, 7, 9, 5, 1, 0, time.UTC) },
	}

	path, err := w.Write("xtrackers", records())

	require.NoError(t, err)
	require.Equal(t, "xtrackers_20250307_090501.json", filepath.Base(path))
}

func TestWrite_Error(t *testing.T) {
	t.Parallel()

	// Arrange: the output directory is a regular file.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "output")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	w := &output.Writer{Dir: blocker}

	// Act
	_, err := w.Write("ishares", records())

	// Assert
	var we *output.WriteError
	require.ErrorAs(t, err, &we)
	require.Equal(t, filepath.Join(blocker, "ishares.json"), we.Path)
}
