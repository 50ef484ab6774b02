package recommend

import (
	"context"
	"fmt"
)

// likedGenreThreshold marks a genre as liked for the shared-genre list.
const likedGenreThreshold = 0.6

// AxisBreakdown is the score detail on one axis.
type AxisBreakdown struct {
	User1Score    float64 `json:"user1_score"`
	User2Score    float64 `json:"user2_score"`
	Combined      float64 `json:"combined_score"`
	Formula       string  `json:"formula"`
	Compatibility string  `json:"compatibility"`
}

// GenreBreakdown adds the per-genre maps behind the genre axis.
type GenreBreakdown struct {
	AxisBreakdown
	User1Genres map[string]float64 `json:"user1_genre_scores"`
	User2Genres map[string]float64 `json:"user2_genre_scores"`
	SharedLikes []string           `json:"shared_liked_genres"`
	MovieGenres []string           `json:"movie_genres"`
}

// ConfidenceFactors describes how much each model can be trusted.
type ConfidenceFactors struct {
	User1Confidence   float64 `json:"user1_confidence"`
	User2Confidence   float64 `json:"user2_confidence"`
	User1Interactions int     `json:"user1_interactions"`
	User2Interactions int     `json:"user2_interactions"`
}

// Explanation is the read-only score breakdown for one movie and pair.
type Explanation struct {
	SessionID        string            `json:"session_id"`
	MovieID          int64             `json:"movie_id"`
	MovieTitle       string            `json:"movie_title"`
	User1ID          string            `json:"user1_id"`
	User2ID          string            `json:"user2_id"`
	Genre            GenreBreakdown    `json:"genre_analysis"`
	Semantic         AxisBreakdown     `json:"semantic_analysis"`
	Stage            Stage             `json:"stage"`
	StageDescription string            `json:"stage_description"`
	Weights          Weights           `json:"weights"`
	Confidence       ConfidenceFactors `json:"confidence_factors"`
}

// CompatibilityLabel buckets a combined score. The same cutoffs apply to
// both axes: <0.4 poor, <0.6 moderate, <0.8 good, otherwise excellent.
func CompatibilityLabel(score float64) string {
	switch {
	case score < 0.4:
		return "poor"
	case score < 0.6:
		return "moderate"
	case score < 0.8:
		return "good"
	default:
		return "excellent"
	}
}

// ExplanationBuilder reconstructs the inputs of a ranking decision without
// mutating anything.
type ExplanationBuilder struct {
	engine *Engine
}

// NewExplanationBuilder reads through e's store, cache and catalog.
func NewExplanationBuilder(e *Engine) *ExplanationBuilder {
	return &ExplanationBuilder{engine: e}
}

// Explain builds the breakdown for movieID as seen by user1 and user2.
func (b *ExplanationBuilder) Explain(ctx context.Context, sessionID string, movieID int64, user1, user2 string) (*Explanation, error) {
	e := b.engine
	rs, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	movie, err := e.catalog.Get(ctx, movieID)
	if err != nil {
		return nil, err
	}
	p1, err := e.loadPreferences(ctx, user1)
	if err != nil {
		return nil, err
	}
	p2, err := e.loadPreferences(ctx, user2)
	if err != nil {
		return nil, err
	}

	g1 := GenreScore(p1.GenrePreferences, movie.Genres)
	g2 := GenreScore(p2.GenrePreferences, movie.Genres)
	s1 := SemanticScore(p1.EmbeddingVector, movie.Embedding)
	s2 := SemanticScore(p2.EmbeddingVector, movie.Embedding)

	stage := e.scheduler.Advance(Stage(rs.Stage), rs.TotalInteractions)

	return &Explanation{
		SessionID:  rs.ID,
		MovieID:    movie.ID,
		MovieTitle: movie.Title,
		User1ID:    user1,
		User2ID:    user2,
		Genre: GenreBreakdown{
			AxisBreakdown: axis(g1, g2),
			User1Genres:   GenreScores(p1.GenrePreferences, movie.Genres),
			User2Genres:   GenreScores(p2.GenrePreferences, movie.Genres),
			SharedLikes:   sharedGenres(p1, p2),
			MovieGenres:   movie.Genres,
		},
		Semantic:         axis(s1, s2),
		Stage:            stage,
		StageDescription: e.scheduler.Describe(stage),
		Weights:          e.scheduler.Weights(stage),
		Confidence: ConfidenceFactors{
			User1Confidence:   p1.ConfidenceScore,
			User2Confidence:   p2.ConfidenceScore,
			User1Interactions: p1.TotalInteractions,
			User2Interactions: p2.TotalInteractions,
		},
	}, nil
}

func axis(u1, u2 float64) AxisBreakdown {
	combined := Compatibility(u1, u2)
	lo := u1
	if u2 < lo {
		lo = u2
	}
	return AxisBreakdown{
		User1Score: u1,
		User2Score: u2,
		Combined:   combined,
		Formula: fmt.Sprintf("0.7 * min(%.3f, %.3f) + 0.3 * avg(%.3f, %.3f) = 0.7 * %.3f + 0.3 * %.3f = %.3f",
			u1, u2, u1, u2, lo, (u1+u2)/2, combined),
		Compatibility: CompatibilityLabel(combined),
	}
}

func sharedGenres(p1, p2 *Preferences) []string {
	var out []string
	for _, g := range p1.LikedGenres(likedGenreThreshold) {
		if p2.GenrePreferences[g] >= likedGenreThreshold {
			out = append(out, g)
		}
	}
	return out
}
