package recommend

import (
	"math"
	"sort"
	"strings"

	"github.com/oggyb/moviematch/internal/catalog"
	"github.com/oggyb/moviematch/internal/db"
)

// FeedbackType is a single swipe outcome.
type FeedbackType string

const (
	FeedbackLike    FeedbackType = "like"
	FeedbackDislike FeedbackType = "dislike"
	FeedbackSkip    FeedbackType = "skip"
)

// ParseFeedbackType normalises s; ok is false for anything else.
func ParseFeedbackType(s string) (FeedbackType, bool) {
	switch t := FeedbackType(strings.ToLower(strings.TrimSpace(s))); t {
	case FeedbackLike, FeedbackDislike, FeedbackSkip:
		return t, true
	}
	return "", false
}

const (
	DefaultRatingThreshold     = 6.0
	DefaultYearPreferenceStart = 1990

	// confidenceScale is the interaction count at which confidence reaches 1-1/e.
	confidenceScale = 10.0
)

// Preferences is the learned taste of one user.
type Preferences struct {
	UserID              string             `json:"user_id"`
	GenrePreferences    map[string]float64 `json:"genre_preferences"`
	GenreCounts         map[string]int     `json:"genre_counts,omitempty"`
	EmbeddingVector     []float64          `json:"embedding_vector,omitempty"`
	LikedCount          int                `json:"liked_count"`
	RatingThreshold     float64            `json:"rating_threshold"`
	YearPreferenceStart int                `json:"year_preference_start"`
	ConfidenceScore     float64            `json:"confidence_score"`
	TotalInteractions   int                `json:"total_interactions"`
}

// NewPreferences returns the neutral prior for a user with no feedback.
func NewPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:              userID,
		GenrePreferences:    map[string]float64{},
		GenreCounts:         map[string]int{},
		RatingThreshold:     DefaultRatingThreshold,
		YearPreferenceStart: DefaultYearPreferenceStart,
	}
}

// Confidence saturates towards 1 as interactions grow and never decreases.
func Confidence(interactions int) float64 {
	if interactions <= 0 {
		return 0
	}
	return 1 - math.Exp(-float64(interactions)/confidenceScale)
}

// Apply folds one feedback event on m into the model.
//
// Behavior:
//   - Every event counts as an interaction and updates confidence.
//   - Like/dislike move each of m's genres toward 1/0 with rate 1/(n+1),
//     n being that genre's event count including this one.
//   - Likes fold m's embedding into the running mean of liked embeddings.
//   - Skips change nothing else.
func (p *Preferences) Apply(fb FeedbackType, m catalog.Movie) {
	if p.GenrePreferences == nil {
		p.GenrePreferences = map[string]float64{}
	}
	if p.GenreCounts == nil {
		p.GenreCounts = map[string]int{}
	}

	p.TotalInteractions++
	p.ConfidenceScore = Confidence(p.TotalInteractions)

	if fb == FeedbackSkip {
		return
	}

	target := 0.0
	if fb == FeedbackLike {
		target = 1.0
	}
	for _, g := range uniqueGenres(m.Genres) {
		n := p.GenreCounts[g] + 1
		p.GenreCounts[g] = n

		old, ok := p.GenrePreferences[g]
		if !ok {
			old = neutralScore
		}
		rate := 1.0 / float64(n+1)
		p.GenrePreferences[g] = clamp01(old + (target-old)*rate)
	}

	if fb == FeedbackLike && len(m.Embedding) > 0 {
		p.foldEmbedding(m.Embedding)
	}
}

func (p *Preferences) foldEmbedding(e []float32) {
	if len(p.EmbeddingVector) == 0 {
		p.EmbeddingVector = make([]float64, len(e))
		for i, v := range e {
			p.EmbeddingVector[i] = float64(v)
		}
		p.LikedCount = 1
		return
	}
	// catalog dimension changed; keep the existing taste vector
	if len(p.EmbeddingVector) != len(e) {
		return
	}
	p.LikedCount++
	k := float64(p.LikedCount)
	for i, v := range e {
		p.EmbeddingVector[i] += (float64(v) - p.EmbeddingVector[i]) / k
	}
}

// LikedGenres returns genres scored at least threshold, sorted by name.
func (p *Preferences) LikedGenres(threshold float64) []string {
	var out []string
	for g, v := range p.GenrePreferences {
		if v >= threshold {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}

func uniqueGenres(genres []string) []string {
	seen := make(map[string]struct{}, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		if _, dup := seen[g]; dup || g == "" {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

func preferencesFromRow(row *db.UserPreference) *Preferences {
	p := &Preferences{
		UserID:              row.UserID,
		GenrePreferences:    row.GenrePreferences,
		GenreCounts:         row.GenreCounts,
		EmbeddingVector:     row.EmbeddingVector,
		LikedCount:          row.LikedCount,
		RatingThreshold:     row.RatingThreshold,
		YearPreferenceStart: row.YearPreferenceStart,
		ConfidenceScore:     row.ConfidenceScore,
		TotalInteractions:   row.TotalInteractions,
	}
	if p.GenrePreferences == nil {
		p.GenrePreferences = map[string]float64{}
	}
	if p.GenreCounts == nil {
		p.GenreCounts = map[string]int{}
	}
	return p
}

func (p *Preferences) toRow() *db.UserPreference {
	return &db.UserPreference{
		UserID:              p.UserID,
		GenrePreferences:    p.GenrePreferences,
		GenreCounts:         p.GenreCounts,
		EmbeddingVector:     p.EmbeddingVector,
		LikedCount:          p.LikedCount,
		RatingThreshold:     p.RatingThreshold,
		YearPreferenceStart: p.YearPreferenceStart,
		ConfidenceScore:     p.ConfidenceScore,
		TotalInteractions:   p.TotalInteractions,
	}
}
