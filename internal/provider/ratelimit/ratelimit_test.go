package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"etfscraper/internal/provider"
	"etfscraper/internal/provider/providertest"
	"etfscraper/internal/provider/ratelimit"
)

func okPage(_ context.Context, req provider.FetchRequest) (*provider.Page, error) {
	return &provider.Page{URL: req.URL, HTML: "<p>ok</p>"}, nil
}

func TestFetcher_MinInterval(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	inner := providertest.NewMockFetcher(ctrl)
	inner.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(okPage).Times(3)
	f := &ratelimit.Fetcher{F: inner, L: ratelimit.MinInterval(40 * time.Millisecond)}

	// Act
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(testContext(t), provider.FetchRequest{URL: "https://funds.example.test"})
		require.NoError(t, err)
	}

	// Assert: the first call is free, the next two wait an interval each.
	require.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}

func TestFetcher_CanceledWait(t *testing.T) {
	t.Parallel()

	// Arrange: the bucket is drained and refills slowly.
	ctrl := gomock.NewController(t)
	inner := providertest.NewMockFetcher(ctrl)
	inner.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(okPage).Times(1)
	f := &ratelimit.Fetcher{F: inner, L: ratelimit.PerMinute(1, 1)}
	_, err := f.Fetch(testContext(t), provider.FetchRequest{URL: "https://funds.example.test/1"})
	require.NoError(t, err)

	// Act
	ctx, cancel := context.WithTimeout(testContext(t), 20*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, provider.FetchRequest{URL: "https://funds.example.test/2"})

	// Assert: the wrapped fetcher is not called a second time.
	var fe *provider.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "https://funds.example.test/2", fe.URL)
}

func TestPerMinute_DefaultsBurst(t *testing.T) {
	t.Parallel()

	l := ratelimit.PerMinute(120, 0)
	require.Equal(t, 1, l.Burst())
	require.InDelta(t, 2.0, float64(l.Limit()), 1e-9)
}

func TestBatch_PausesBetweenBatches(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	inner := providertest.NewMockFetcher(ctrl)
	inner.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(okPage).Times(4)
	b := &ratelimit.Batch{F: inner, Size: 2, Pause: 50 * time.Millisecond}

	// Act: two full batches.
	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := b.Fetch(testContext(t), provider.FetchRequest{URL: "https://funds.example.test"})
		require.NoError(t, err)
	}

	// Assert: one pause, between the batches.
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestBatch_CanceledPause(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := providertest.NewMockFetcher(ctrl)
	inner.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(okPage).Times(1)
	b := &ratelimit.Batch{F: inner, Size: 1, Pause: time.Hour}

	_, err := b.Fetch(testContext(t), provider.FetchRequest{URL: "https://funds.example.test/1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	_, err = b.Fetch(ctx, provider.FetchRequest{URL: "https://funds.example.test/2"})
	require.ErrorIs(t, err, context.Canceled)
}
