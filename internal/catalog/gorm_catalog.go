package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/oggyb/moviematch/internal/db"
	svcErr "github.com/oggyb/moviematch/internal/errors"
)

// similarScanLimit bounds how many rows Similar ranks in memory.
const similarScanLimit = 1000

// GormCatalog reads the `movies` table.
type GormCatalog struct {
	db *gorm.DB
}

// NewGormCatalog creates a catalog bound to the given DB connection.
func NewGormCatalog(database *gorm.DB) *GormCatalog {
	return &GormCatalog{db: database}
}

func (c *GormCatalog) Get(ctx context.Context, id int64) (Movie, error) {
	var m db.Movie
	err := c.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Movie{}, fmt.Errorf("movie %d: %w", id, svcErr.ErrMovieNotFound)
	}
	if err != nil {
		return Movie{}, err
	}
	return fromRow(m), nil
}

// Random samples with the dialect's random ordering, then restores
// insertion order so equal scores downstream keep a stable order.
//
// Example:
//
//	c.Random(ctx, 30, Filter{Exclude: []int64{4, 8}, MinRating: 6})
func (c *GormCatalog) Random(ctx context.Context, n int, f Filter) ([]Movie, error) {
	if n <= 0 {
		return nil, nil
	}

	query := c.db.WithContext(ctx).Model(&db.Movie{})
	if len(f.Exclude) > 0 {
		query = query.Where("id NOT IN ?", f.Exclude)
	}
	if f.MinRating > 0 {
		query = query.Where("rating >= ?", f.MinRating)
	}
	if f.YearStart > 0 {
		query = query.Where("release_year >= ?", f.YearStart)
	}

	var rows []db.Movie
	if err := query.Order(c.randomOrder()).Limit(n).Find(&rows).Error; err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return fromRows(rows), nil
}

func (c *GormCatalog) Similar(ctx context.Context, id int64, n int) ([]Movie, error) {
	source, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(source.Embedding) == 0 || n <= 0 {
		return nil, nil
	}

	var rows []db.Movie
	if err := c.db.WithContext(ctx).
		Where("id <> ?", id).
		Order("id").
		Limit(similarScanLimit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rankBySimilarity(source, fromRows(rows), n), nil
}

func (c *GormCatalog) randomOrder() string {
	if c.db.Dialector.Name() == "mysql" {
		return "RAND()"
	}
	return "RANDOM()"
}

func rankBySimilarity(source Movie, pool []Movie, n int) []Movie {
	type scored struct {
		movie Movie
		sim   float64
	}
	ranked := make([]scored, 0, len(pool))
	for _, m := range pool {
		if sim, ok := Cosine(source.Embedding, m.Embedding); ok {
			ranked = append(ranked, scored{movie: m, sim: sim})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]Movie, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.movie)
	}
	return out
}

func fromRow(m db.Movie) Movie {
	return Movie{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Genres:      m.Genres,
		Embedding:   m.Embedding,
		Rating:      m.Rating,
		Year:        m.ReleaseYear,
		PosterURL:   m.PosterURL,
	}
}

func fromRows(rows []db.Movie) []Movie {
	out := make([]Movie, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out
}
