package db

import (
	"time"
)

// SessionDocument stores one pairing session as a versioned JSON document,
// keyed by its 6-digit code.
//
// Version is bumped on every committed write and is the compare-and-set
// token for optimistic read-modify-write.
type SessionDocument struct {
	Code      string    `gorm:"primaryKey;size:16"`
	Version   int64     `gorm:"not null;default:0"`
	Active    bool      `gorm:"not null;default:true;index"`
	Document  []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// RecommendationSession is the algorithm-side state of one user pair.
//
// Unique index: idx_rec_pair(user_a, user_b)
//   - UserA/UserB are stored sorted, so there is exactly one row per canonical pair.
type RecommendationSession struct {
	ID                string    `gorm:"primaryKey;size:36"`
	UserA             string    `gorm:"size:128;not null;uniqueIndex:idx_rec_pair,priority:1"`
	UserB             string    `gorm:"size:128;not null;uniqueIndex:idx_rec_pair,priority:2"`
	Stage             string    `gorm:"size:16;not null;default:exploration"`
	TotalInteractions int       `gorm:"not null;default:0"`
	MutualLikes       int       `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// UserPreference is the learned taste of one user. Written only by that
// user's feedback stream.
type UserPreference struct {
	UserID              string             `gorm:"primaryKey;size:128"`
	GenrePreferences    map[string]float64 `gorm:"serializer:json"`
	GenreCounts         map[string]int     `gorm:"serializer:json"`
	EmbeddingVector     []float64          `gorm:"serializer:json"`
	LikedCount          int                `gorm:"not null;default:0"`
	RatingThreshold     float64            `gorm:"not null;default:6"`
	YearPreferenceStart int                `gorm:"not null;default:1990"`
	ConfidenceScore     float64            `gorm:"not null;default:0"`
	TotalInteractions   int                `gorm:"not null;default:0"`
	CreatedAt           time.Time          `gorm:"autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"autoUpdateTime"`
}

// FeedbackDecision holds the latest feedback a user gave a movie within a
// recommendation session.
//
// Composite PK: (SessionID, UserID, MovieID)
//   - Ensures a single row per triple (overwrite guarantee on re-swipe).
//
// Indexes:
//   - idx_decision_lookup(session_id, movie_id, feedback_type)
//     Optimizes the partner lookup behind mutual-like detection.
type FeedbackDecision struct {
	SessionID    string    `gorm:"primaryKey;size:36;index:idx_decision_lookup,priority:1"`
	UserID       string    `gorm:"primaryKey;size:128"`
	MovieID      int64     `gorm:"primaryKey;autoIncrement:false;index:idx_decision_lookup,priority:2"`
	FeedbackType string    `gorm:"size:8;not null;index:idx_decision_lookup,priority:3"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// FeedbackEvent is the append-only log of every feedback submission.
type FeedbackEvent struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID    string    `gorm:"size:36;not null;index"`
	UserID       string    `gorm:"size:128;not null"`
	MovieID      int64     `gorm:"not null"`
	FeedbackType string    `gorm:"size:8;not null"`
	TimeSpentMs  *int64
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// Movie is a catalog row. ID order is catalog insertion order.
type Movie struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Title       string    `gorm:"size:255;not null;index"`
	Description string    `gorm:"type:text"`
	ReleaseYear int       `gorm:"index"`
	PosterURL   string    `gorm:"size:512"`
	Genres      []string  `gorm:"serializer:json"`
	Rating      float64   `gorm:"not null;default:0"`
	Embedding   []float32 `gorm:"serializer:json"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// AllModels lists every table managed by AutoMigrate.
func AllModels() []any {
	return []any{
		&SessionDocument{},
		&RecommendationSession{},
		&UserPreference{},
		&FeedbackDecision{},
		&FeedbackEvent{},
		&Movie{},
	}
}
