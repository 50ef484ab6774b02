package recommend

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/oggyb/moviematch/internal/catalog"
)

// QualityFilter evaluates a boolean CEL expression per candidate.
//
// Variables:
//   - movie: {id, title, rating, year, genres}
//   - prefs: {rating_threshold, year_start}
//
// Example:
//
//	movie.rating >= prefs.rating_threshold && movie.year >= prefs.year_start
type QualityFilter struct {
	expr string
	prg  cel.Program
}

// Hint is the soft filter input derived from the pair's preferences.
type Hint struct {
	RatingThreshold float64
	YearStart       int
}

// NewQualityFilter compiles expr. An empty expression keeps every movie.
func NewQualityFilter(expr string) (*QualityFilter, error) {
	if expr == "" {
		return &QualityFilter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("movie", cel.DynType),
		cel.Variable("prefs", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile quality filter: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program quality filter: %w", err)
	}
	return &QualityFilter{expr: expr, prg: prg}, nil
}

// Keep reports whether m passes. Evaluation errors keep the movie.
func (f *QualityFilter) Keep(m catalog.Movie, h Hint) bool {
	if f == nil || f.prg == nil {
		return true
	}
	out, _, err := f.prg.Eval(map[string]any{
		"movie": map[string]any{
			"id":     m.ID,
			"title":  m.Title,
			"rating": m.Rating,
			"year":   int64(m.Year),
			"genres": m.Genres,
		},
		"prefs": map[string]any{
			"rating_threshold": h.RatingThreshold,
			"year_start":       int64(h.YearStart),
		},
	})
	if err != nil {
		return true
	}
	keep, ok := out.Value().(bool)
	return !ok || keep
}

// Apply filters movies, but returns the input unchanged when nothing would
// survive.
func (f *QualityFilter) Apply(movies []catalog.Movie, h Hint) []catalog.Movie {
	if f == nil || f.prg == nil {
		return movies
	}
	kept := make([]catalog.Movie, 0, len(movies))
	for _, m := range movies {
		if f.Keep(m, h) {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return movies
	}
	return kept
}

// pairHint picks the more permissive hint of the two users.
func pairHint(a, b *Preferences) Hint {
	h := Hint{RatingThreshold: a.RatingThreshold, YearStart: a.YearPreferenceStart}
	if b.RatingThreshold < h.RatingThreshold {
		h.RatingThreshold = b.RatingThreshold
	}
	if b.YearPreferenceStart < h.YearStart {
		h.YearStart = b.YearPreferenceStart
	}
	return h
}
