package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/moviematch/internal/db"
	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/recommend"
)

// RecommendationRepository provides data access for recommendation sessions,
// user preferences and the feedback tables.
type RecommendationRepository struct {
	db *gorm.DB
}

// NewRecommendationRepository creates a new repository bound to the given DB connection.
func NewRecommendationRepository(database *gorm.DB) *RecommendationRepository {
	return &RecommendationRepository{db: database}
}

var _ recommend.Store = (*RecommendationRepository)(nil)

// CreateSession inserts a session for the (already sorted) pair.
//
// Behavior:
//   - Unique index idx_rec_pair makes the insert a no-op for a known pair.
//   - On a no-op the existing row is returned together with ErrDuplicateSession.
//
// Example:
//
//	repo.CreateSession(ctx, uuid.NewString(), "alice", "bob")
func (r *RecommendationRepository) CreateSession(ctx context.Context, id, userA, userB string) (*db.RecommendationSession, error) {
	rs := db.RecommendationSession{
		ID:    id,
		UserA: userA,
		UserB: userB,
		Stage: string(recommend.StageExploration),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rs)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return &rs, nil
	}

	existing, err := r.FindByPair(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	return existing, svcErr.ErrDuplicateSession
}

// FindByPair looks a session up by its sorted pair.
func (r *RecommendationRepository) FindByPair(ctx context.Context, userA, userB string) (*db.RecommendationSession, error) {
	var rs db.RecommendationSession
	err := r.db.WithContext(ctx).
		Where("user_a = ? AND user_b = ?", userA, userB).
		Take(&rs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("pair %s/%s: %w", userA, userB, svcErr.ErrRecommendationSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *RecommendationRepository) GetSession(ctx context.Context, id string) (*db.RecommendationSession, error) {
	var rs db.RecommendationSession
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %s: %w", id, svcErr.ErrRecommendationSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *RecommendationRepository) GetPreferences(ctx context.Context, userID string) (*db.UserPreference, error) {
	var p db.UserPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePreferences upserts the full model for one user.
func (r *RecommendationRepository) SavePreferences(ctx context.Context, p *db.UserPreference) error {
	return savePreferences(r.db.WithContext(ctx), p)
}

func savePreferences(tx *gorm.DB, p *db.UserPreference) error {
	return tx.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"genre_preferences", "genre_counts", "embedding_vector", "liked_count",
				"rating_threshold", "year_preference_start", "confidence_score",
				"total_interactions", "updated_at",
			}),
		}).
		Create(p).Error
}

// RecordFeedback persists one feedback event.
//
// Behavior:
//   - The session row is locked for the transaction (no-op on SQLite, which
//     serialises writers anyway), so the two partners' events are ordered.
//   - The latest decision per (session, user, movie) is overwritten.
//   - mutual is true only when this event is a like, the partner's latest
//     decision on the movie is a like, and the sender had not already liked it.
//   - Counters, stage and rec.Preferences (when set) are written in the same
//     transaction, so a failed event leaves the sender's model unchanged.
func (r *RecommendationRepository) RecordFeedback(
	ctx context.Context,
	rec recommend.FeedbackRecord,
	nextStage func(current string, total int) string,
) (*db.RecommendationSession, bool, error) {
	var (
		rs     db.RecommendationSession
		mutual bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", rec.SessionID).
			Take(&rs).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("session %s: %w", rec.SessionID, svcErr.ErrRecommendationSessionNotFound)
		}
		if err != nil {
			return err
		}

		previous, err := latestDecision(tx, rec.SessionID, rec.UserID, rec.MovieID)
		if err != nil {
			return err
		}
		if err := upsertDecision(tx, rec.SessionID, rec.UserID, rec.MovieID, string(rec.Feedback)); err != nil {
			return err
		}
		partner, err := latestDecision(tx, rec.SessionID, rec.PartnerID, rec.MovieID)
		if err != nil {
			return err
		}
		like := string(recommend.FeedbackLike)
		mutual = string(rec.Feedback) == like && partner == like && previous != like

		if rec.Preferences != nil {
			if err := savePreferences(tx, rec.Preferences); err != nil {
				return err
			}
		}

		if err := tx.Create(&db.FeedbackEvent{
			SessionID:    rec.SessionID,
			UserID:       rec.UserID,
			MovieID:      rec.MovieID,
			FeedbackType: string(rec.Feedback),
			TimeSpentMs:  rec.TimeSpentMs,
		}).Error; err != nil {
			return err
		}

		rs.TotalInteractions++
		if mutual {
			rs.MutualLikes++
		}
		rs.Stage = nextStage(rs.Stage, rs.TotalInteractions)
		return tx.Model(&rs).Updates(map[string]any{
			"total_interactions": rs.TotalInteractions,
			"mutual_likes":       rs.MutualLikes,
			"stage":              rs.Stage,
		}).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &rs, mutual, nil
}

// DecidedMovieIDs returns every movie either member gave feedback on.
func (r *RecommendationRepository) DecidedMovieIDs(ctx context.Context, sessionID string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&db.FeedbackDecision{}).
		Where("session_id = ?", sessionID).
		Distinct("movie_id").
		Order("movie_id").
		Pluck("movie_id", &ids).Error
	return ids, err
}

// FeedbackCounts tallies the event log per user and feedback type.
func (r *RecommendationRepository) FeedbackCounts(ctx context.Context, sessionID string) (map[string]map[string]int, error) {
	var rows []struct {
		UserID       string
		FeedbackType string
		N            int
	}
	err := r.db.WithContext(ctx).
		Model(&db.FeedbackEvent{}).
		Select("user_id, feedback_type, COUNT(*) AS n").
		Where("session_id = ?", sessionID).
		Group("user_id, feedback_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]int)
	for _, row := range rows {
		if out[row.UserID] == nil {
			out[row.UserID] = make(map[string]int)
		}
		out[row.UserID][row.FeedbackType] = row.N
	}
	return out, nil
}

// HasLiked reports whether user's latest decision on movie is a like.
func (r *RecommendationRepository) HasLiked(ctx context.Context, sessionID, userID string, movieID int64) (bool, error) {
	latest, err := latestDecision(r.db.WithContext(ctx), sessionID, userID, movieID)
	return latest == string(recommend.FeedbackLike), err
}

// upsertDecision inserts or overwrites the latest decision for a triple.
// Composite PK (session_id, user_id, movie_id) is the overwrite guarantee.
func upsertDecision(tx *gorm.DB, sessionID, userID string, movieID int64, feedback string) error {
	decision := db.FeedbackDecision{
		SessionID:    sessionID,
		UserID:       userID,
		MovieID:      movieID,
		FeedbackType: feedback,
	}
	return tx.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}, {Name: "movie_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"feedback_type", "updated_at"}),
		}).
		Create(&decision).Error
}

// latestDecision returns "" when the user has not decided on the movie.
func latestDecision(tx *gorm.DB, sessionID, userID string, movieID int64) (string, error) {
	var d db.FeedbackDecision
	err := tx.
		Where("session_id = ? AND user_id = ? AND movie_id = ?", sessionID, userID, movieID).
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return d.FeedbackType, err
}
