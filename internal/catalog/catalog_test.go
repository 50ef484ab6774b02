package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/moviematch/internal/catalog"
	"github.com/oggyb/moviematch/internal/db/dbtest"
	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/logger"
)

func ids(movies []catalog.Movie) []int64 {
	out := make([]int64, 0, len(movies))
	for _, m := range movies {
		out = append(out, m.ID)
	}
	return out
}

func TestGormCatalogGet(t *testing.T) {
	ctx := context.Background()
	c := catalog.NewGormCatalog(dbtest.OpenWithCatalog(t))

	m, err := c.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Bravo", m.Title)
	assert.Equal(t, []string{"Comedy", "Romance"}, m.Genres)
	assert.Equal(t, 2004, m.Year)
	assert.Len(t, m.Embedding, 4)

	_, err = c.Get(ctx, 99)
	assert.ErrorIs(t, err, svcErr.ErrMovieNotFound)
}

func TestGormCatalogRandomFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	c := catalog.NewGormCatalog(dbtest.OpenWithCatalog(t))

	all, err := c.Random(ctx, 10, catalog.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(all))

	filtered, err := c.Random(ctx, 10, catalog.Filter{Exclude: []int64{1}, MinRating: 6, YearStart: 1990})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 5}, ids(filtered))

	few, err := c.Random(ctx, 2, catalog.Filter{})
	require.NoError(t, err)
	require.Len(t, few, 2)
	assert.Less(t, few[0].ID, few[1].ID)
}

func TestGormCatalogSimilar(t *testing.T) {
	ctx := context.Background()
	c := catalog.NewGormCatalog(dbtest.OpenWithCatalog(t))

	similar, err := c.Similar(ctx, 1, 2)
	require.NoError(t, err)
	// Charlie points almost the same way as Alpha, Echo is next.
	assert.Equal(t, []int64{3, 5}, ids(similar))
}

func TestMemoryCatalogMatchesGorm(t *testing.T) {
	ctx := context.Background()
	c := catalog.NewMemoryCatalog(7,
		catalog.Movie{ID: 1, Title: "A", Rating: 8, Year: 2000, Embedding: []float32{1, 0}},
		catalog.Movie{ID: 2, Title: "B", Rating: 5, Year: 2000, Embedding: []float32{0, 1}},
		catalog.Movie{ID: 3, Title: "C", Rating: 9, Year: 1980, Embedding: []float32{1, 0.1}},
	)

	got, err := c.Random(ctx, 5, catalog.Filter{MinRating: 6})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(got))

	got, err = c.Random(ctx, 5, catalog.Filter{Exclude: []int64{1, 2, 3}})
	require.NoError(t, err)
	assert.Empty(t, got)

	similar, err := c.Similar(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids(similar))
}

func TestCosine(t *testing.T) {
	sim, ok := catalog.Cosine([]float32{1, 0}, []float64{1, 0})
	assert.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, ok = catalog.Cosine([]float64{1, 0}, []float64{-1, 0})
	assert.True(t, ok)
	assert.InDelta(t, -1.0, sim, 1e-9)

	_, ok = catalog.Cosine([]float64{1, 0}, []float64{1, 0, 0})
	assert.False(t, ok)

	_, ok = catalog.Cosine([]float64{0, 0}, []float64{1, 0})
	assert.False(t, ok)
}

type failingCatalog struct {
	catalog.Catalog
	err error
}

func (f failingCatalog) Random(context.Context, int, catalog.Filter) ([]catalog.Movie, error) {
	return nil, f.err
}

func (f failingCatalog) Get(context.Context, int64) (catalog.Movie, error) {
	return catalog.Movie{}, f.err
}

func TestBreakerCatalogWrapsFailures(t *testing.T) {
	ctx := context.Background()
	b := catalog.NewBreakerCatalog(failingCatalog{err: errors.New("db down")}, catalog.BreakerSettings{
		Name:         "test-wrap",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	}, logger.Discard())

	_, err := b.Random(ctx, 3, catalog.Filter{})
	assert.ErrorIs(t, err, svcErr.ErrAlgorithmUnavailable)
	assert.True(t, svcErr.IsFallback(err))

	_, _ = b.Random(ctx, 3, catalog.Filter{})
	assert.Equal(t, "open", b.State().String())

	_, err = b.Random(ctx, 3, catalog.Filter{})
	assert.ErrorIs(t, err, svcErr.ErrAlgorithmUnavailable)
}

func TestBreakerCatalogNotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	b := catalog.NewBreakerCatalog(failingCatalog{err: svcErr.ErrMovieNotFound}, catalog.BreakerSettings{
		Name:         "test-notfound",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 0.1,
	}, logger.Discard())

	for i := 0; i < 5; i++ {
		_, err := b.Get(ctx, 42)
		assert.ErrorIs(t, err, svcErr.ErrMovieNotFound)
	}
	assert.Equal(t, "closed", b.State().String())
}

func TestBreakerCatalogPassesResults(t *testing.T) {
	ctx := context.Background()
	inner := catalog.NewMemoryCatalog(1, catalog.Movie{ID: 9, Title: "Nine"})
	b := catalog.NewBreakerCatalog(inner, catalog.DefaultBreakerSettings(), logger.Discard())

	m, err := b.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Nine", m.Title)

	got, err := b.Random(ctx, 5, catalog.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, ids(got))
}
