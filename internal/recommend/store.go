package recommend

import (
	"context"

	"github.com/oggyb/moviematch/internal/db"
)

// Store persists recommendation sessions, preferences and feedback.
// repository.RecommendationRepository is the production implementation.
type Store interface {
	// CreateSession inserts a session for the sorted pair. When one already
	// exists it returns that row together with ErrDuplicateSession.
	CreateSession(ctx context.Context, id, userA, userB string) (*db.RecommendationSession, error)
	GetSession(ctx context.Context, id string) (*db.RecommendationSession, error)

	// GetPreferences returns nil without error when the user has none yet.
	GetPreferences(ctx context.Context, userID string) (*db.UserPreference, error)
	SavePreferences(ctx context.Context, p *db.UserPreference) error

	// RecordFeedback persists one event in a single transaction per session
	// and reports whether it completed a mutual like. The stored stage is
	// whatever nextStage returns for the new interaction total. A non-nil
	// rec.Preferences is upserted in the same transaction.
	RecordFeedback(ctx context.Context, rec FeedbackRecord, nextStage func(current string, total int) string) (*db.RecommendationSession, bool, error)
	DecidedMovieIDs(ctx context.Context, sessionID string) ([]int64, error)
	FeedbackCounts(ctx context.Context, sessionID string) (map[string]map[string]int, error)
}

// FeedbackRecord is one feedback event as persisted.
type FeedbackRecord struct {
	SessionID   string
	UserID      string
	PartnerID   string
	MovieID     int64
	Feedback    FeedbackType
	TimeSpentMs *int64
	// Preferences is the sender's updated model, written atomically with the event.
	Preferences *db.UserPreference
}

// Cache is the optional Redis layer in front of Store reads.
// cache.RedisCache implements it.
type Cache interface {
	GetSeen(ctx context.Context, sessionID string) ([]int64, bool, error)
	StoreSeen(ctx context.Context, sessionID string, movieIDs ...int64) error
	AppendSeen(ctx context.Context, sessionID string, movieIDs ...int64) error
	GetPreferences(ctx context.Context, userID string, dst any) (bool, error)
	SetPreferences(ctx context.Context, userID string, v any) error
	InvalidatePreferences(ctx context.Context, userID string) error
}

type noopCache struct{}

func (noopCache) GetSeen(context.Context, string) ([]int64, bool, error) { return nil, false, nil }
func (noopCache) StoreSeen(context.Context, string, ...int64) error { return nil }
func (noopCache) AppendSeen(context.Context, string, ...int64) error { return nil }
func (noopCache) GetPreferences(context.Context, string, any) (bool, error) { return false, nil }
func (noopCache) SetPreferences(context.Context, string, any) error { return nil }
func (noopCache) InvalidatePreferences(context.Context, string) error { return nil }
