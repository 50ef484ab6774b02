package session

import (
	"github.com/oggyb/moviematch/internal/recommend"
	sess "github.com/oggyb/moviematch/internal/session"
)

type CreateSessionRequest struct {
	MemberID string `json:"member_id" validate:"required"`
}

type JoinSessionRequest struct {
	Code     string `json:"code" validate:"required,len=6,numeric"`
	MemberID string `json:"member_id" validate:"required"`
}

type GetSessionRequest struct {
	Code string `json:"code" validate:"required"`
}

type RecordSwipeRequest struct {
	Code     string `json:"code" validate:"required"`
	MemberID string `json:"member_id" validate:"required"`
	MovieID  int64  `json:"movie_id" validate:"gt=0"`
	Liked    bool   `json:"liked"`
}

type SetSmartMatchingRequest struct {
	Code     string `json:"code" validate:"required"`
	MemberID string `json:"member_id" validate:"required"`
	Enabled  bool   `json:"enabled"`
}

type LeaveSessionRequest struct {
	Code     string `json:"code" validate:"required"`
	MemberID string `json:"member_id" validate:"required"`
}

type BootstrapMatchingRequest struct {
	Code     string `json:"code" validate:"required"`
	MemberID string `json:"member_id" validate:"required"`
}

type GetSwipeHistoryRequest struct {
	Code      string `json:"code" validate:"required"`
	MemberID  string `json:"member_id" validate:"required"`
	PageToken string `json:"page_token,omitempty"`
	Limit     int    `json:"limit" validate:"gte=0,lte=100"`
}

type NextMoviesRequest struct {
	Code      string `json:"code" validate:"required"`
	MemberID  string `json:"member_id" validate:"required"`
	BatchSize int    `json:"batch_size" validate:"gte=0,lte=50"`
}

type SubscribeSessionRequest struct {
	Code string `json:"code" validate:"required"`
}

// SessionResponse carries a full session snapshot.
type SessionResponse struct {
	Session *sess.Session `json:"session"`
}

type RecordSwipeResponse struct {
	Session *sess.Session `json:"session"`
	IsMatch bool          `json:"is_match"`
}

type BootstrapMatchingResponse struct {
	// MatchingSessionID is empty for the follower until the leader has
	// stored it; the follower sees it arrive on the subscription stream.
	MatchingSessionID string `json:"matching_session_id"`
	Leader            bool   `json:"leader"`
}

type GetSwipeHistoryResponse struct {
	Events        []sess.SwipeEvent `json:"events"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type NextMoviesResponse struct {
	Movies       []recommend.Recommendation `json:"movies"`
	Personalized bool                       `json:"personalized"`
	Stage        recommend.Stage            `json:"session_stage,omitempty"`
}

// SessionEvent is one message on the subscription stream. Session is nil
// when the code does not exist.
type SessionEvent struct {
	Session *sess.Session `json:"session"`
}
