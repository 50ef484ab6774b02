package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	svcErr "github.com/oggyb/moviematch/internal/errors"
)

// MemoryCatalog is an in-process catalog with a seedable sampler. Slice
// order is insertion order.
type MemoryCatalog struct {
	mu     sync.Mutex
	movies []Movie
	rng    *rand.Rand
}

// NewMemoryCatalog copies movies into a new catalog.
func NewMemoryCatalog(seed int64, movies ...Movie) *MemoryCatalog {
	return &MemoryCatalog{
		movies: append([]Movie(nil), movies...),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (c *MemoryCatalog) Get(_ context.Context, id int64) (Movie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.movies {
		if m.ID == id {
			return m, nil
		}
	}
	return Movie{}, fmt.Errorf("movie %d: %w", id, svcErr.ErrMovieNotFound)
}

func (c *MemoryCatalog) Random(_ context.Context, n int, f Filter) ([]Movie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	excluded := make(map[int64]struct{}, len(f.Exclude))
	for _, id := range f.Exclude {
		excluded[id] = struct{}{}
	}

	positions := make([]int, 0, len(c.movies))
	for i, m := range c.movies {
		if _, skip := excluded[m.ID]; skip {
			continue
		}
		if f.MinRating > 0 && m.Rating < f.MinRating {
			continue
		}
		if f.YearStart > 0 && m.Year < f.YearStart {
			continue
		}
		positions = append(positions, i)
	}

	c.rng.Shuffle(len(positions), func(i, j int) { positions[i], positions[j] = positions[j], positions[i] })
	if len(positions) > n {
		positions = positions[:n]
	}
	sort.Ints(positions)

	out := make([]Movie, 0, len(positions))
	for _, p := range positions {
		out = append(out, c.movies[p])
	}
	return out, nil
}

func (c *MemoryCatalog) Similar(ctx context.Context, id int64, n int) ([]Movie, error) {
	source, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	pool := make([]Movie, 0, len(c.movies))
	for _, m := range c.movies {
		if m.ID != id {
			pool = append(pool, m)
		}
	}
	c.mu.Unlock()
	return rankBySimilarity(source, pool, n), nil
}
