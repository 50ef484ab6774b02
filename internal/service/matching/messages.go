package matching

import "github.com/oggyb/moviematch/internal/catalog"

type CreateMatchingSessionRequest struct {
	User1ID string `json:"user1_id" validate:"required"`
	User2ID string `json:"user2_id" validate:"required,nefield=User1ID"`
}

type CreateMatchingSessionResponse struct {
	SessionID string `json:"session_id"`
	// Existing is true when the pair already had a session.
	Existing bool `json:"existing"`
}

type GetRecommendationsRequest struct {
	SessionID string  `json:"session_id" validate:"required"`
	BatchSize int     `json:"batch_size" validate:"gte=0,lte=50"`
	UserID    string  `json:"user_id" validate:"required"`
	Exclude   []int64 `json:"exclude,omitempty"`
}

type SubmitFeedbackRequest struct {
	SessionID    string `json:"session_id" validate:"required"`
	UserID       string `json:"user_id" validate:"required"`
	MovieID      int64  `json:"movie_id" validate:"gt=0"`
	FeedbackType string `json:"feedback_type" validate:"oneof=like dislike skip"`
	TimeSpentMs  *int64 `json:"time_spent_ms,omitempty" validate:"omitempty,gte=0"`
}

type SubmitFeedbackResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	MutualLike        bool   `json:"mutual_like"`
	SessionStage      string `json:"session_stage"`
	TotalInteractions int    `json:"total_interactions"`
	MutualLikes       int    `json:"mutual_likes"`
}

type GetUserPreferencesRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type GetExplanationRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	MovieID   int64  `json:"movie_id" validate:"gt=0"`
	User1ID   string `json:"user1_id" validate:"required"`
	User2ID   string `json:"user2_id" validate:"required"`
}

type GetSessionStatsRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type GetSimilarMoviesRequest struct {
	MovieID int64 `json:"movie_id" validate:"gt=0"`
	Limit   int   `json:"limit" validate:"gte=0,lte=50"`
}

type GetSimilarMoviesResponse struct {
	Movies []catalog.Movie `json:"movies"`
}

type HealthCheckRequest struct{}

type HealthCheckResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
