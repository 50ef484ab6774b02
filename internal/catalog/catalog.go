// Package catalog exposes the movie catalog the recommendation engine samples
// from. The catalog itself is populated by out-of-band ingestion; this package
// only reads it.
package catalog

import (
	"context"
	"math"
)

// Movie is the catalog record handed to the engine and to clients.
type Movie struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Genres      []string  `json:"genres"`
	Embedding   []float32 `json:"-"`
	Rating      float64   `json:"rating"`
	Year        int       `json:"release_year"`
	PosterURL   string    `json:"poster_url,omitempty"`
}

// Filter narrows a random sample. Zero values disable a clause.
type Filter struct {
	Exclude   []int64
	MinRating float64
	YearStart int
}

// Catalog is the read-only movie source.
type Catalog interface {
	// Get returns one movie or ErrMovieNotFound.
	Get(ctx context.Context, id int64) (Movie, error)

	// Random returns up to n movies sampled uniformly from those matching f,
	// ordered by catalog insertion order.
	Random(ctx context.Context, n int, f Filter) ([]Movie, error)

	// Similar returns up to n movies closest to id by embedding cosine,
	// most similar first.
	Similar(ctx context.Context, id int64, n int) ([]Movie, error)
}

// Cosine returns the cosine similarity of a and b. ok is false when the
// vectors differ in length or either has zero norm.
func Cosine[A, B ~float32 | ~float64](a []A, b []B) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
