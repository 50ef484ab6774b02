// Package session coordinates two-party swipe sessions: membership, swipes,
// matches, live snapshots and the bootstrap of the pair's recommendation
// session.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/oggyb/moviematch/internal/recommend"
)

// MaxMembers is the session capacity.
const MaxMembers = 2

// ErrCodeTaken is returned by Store.Create when the code already exists.
var ErrCodeTaken = errors.New("session code already taken")

// SwipeEvent is one entry of a member's append-only history.
type SwipeEvent struct {
	MovieID int64     `json:"movie_id"`
	Liked   bool      `json:"liked"`
	At      time.Time `json:"timestamp"`
}

// Session is the shared pairing document. ID equals Code.
type Session struct {
	ID                string                    `json:"id"`
	Code              string                    `json:"code"`
	Active            bool                      `json:"active"`
	CreatedAt         time.Time                 `json:"created_at"`
	Members           []string                  `json:"members"`
	Swipes            map[int64]map[string]bool `json:"swipes"`
	ViewedMovies      []int64                   `json:"viewed_movies"`
	UserHistory       map[string][]SwipeEvent   `json:"user_history"`
	Matches           []int64                   `json:"matches"`
	MatchingSessionID string                    `json:"matching_session_id,omitempty"`
	UseSmartMatching  bool                      `json:"use_smart_matching"`
	Version           int64                     `json:"version"`
}

func newSession(code, creator string, now time.Time) *Session {
	return &Session{
		ID:               code,
		Code:             code,
		Active:           true,
		CreatedAt:        now,
		Members:          []string{creator},
		Swipes:           map[int64]map[string]bool{},
		ViewedMovies:     []int64{},
		UserHistory:      map[string][]SwipeEvent{creator: {}},
		Matches:          []int64{},
		UseSmartMatching: true,
	}
}

// IsMember reports whether id belongs to the session.
func (s *Session) IsMember(id string) bool {
	for _, m := range s.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Partner returns the other member, if present.
func (s *Session) Partner(id string) (string, bool) {
	for _, m := range s.Members {
		if m != id {
			return m, true
		}
	}
	return "", false
}

// HasMatch reports whether movieID is a match.
func (s *Session) HasMatch(movieID int64) bool {
	return containsID(s.Matches, movieID)
}

// Viewed reports whether movieID was shown to either member.
func (s *Session) Viewed(movieID int64) bool {
	return containsID(s.ViewedMovies, movieID)
}

// Clone deep-copies the session so subscribers can keep it.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Members = append([]string(nil), s.Members...)
	c.ViewedMovies = append([]int64(nil), s.ViewedMovies...)
	c.Matches = append([]int64(nil), s.Matches...)
	c.Swipes = make(map[int64]map[string]bool, len(s.Swipes))
	for movie, votes := range s.Swipes {
		inner := make(map[string]bool, len(votes))
		for m, v := range votes {
			inner[m] = v
		}
		c.Swipes[movie] = inner
	}
	c.UserHistory = make(map[string][]SwipeEvent, len(s.UserHistory))
	for m, h := range s.UserHistory {
		c.UserHistory[m] = append([]SwipeEvent(nil), h...)
	}
	return &c
}

// Normalize fills nil collections after decoding.
func (s *Session) Normalize() {
	if s.Swipes == nil {
		s.Swipes = map[int64]map[string]bool{}
	}
	if s.UserHistory == nil {
		s.UserHistory = map[string][]SwipeEvent{}
	}
	if s.ViewedMovies == nil {
		s.ViewedMovies = []int64{}
	}
	if s.Matches == nil {
		s.Matches = []int64{}
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// addID appends id when absent and reports whether it did.
func addID(ids []int64, id int64) ([]int64, bool) {
	if containsID(ids, id) {
		return ids, false
	}
	return append(ids, id), true
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Mutation edits a decoded snapshot. Returning changed=false skips the write.
type Mutation func(s *Session) (changed bool, err error)

// Store is the session document store.
type Store interface {
	// Create inserts a new document; ErrCodeTaken when the code exists.
	Create(ctx context.Context, s *Session) error
	// Get returns ErrSessionNotFound for unknown codes.
	Get(ctx context.Context, code string) (*Session, error)
	// Update runs an optimistic read-modify-write, retrying mutate on
	// version conflicts. It returns the committed (or unchanged) snapshot
	// and whether a write happened.
	Update(ctx context.Context, code string, mutate Mutation) (*Session, bool, error)
}

// Recommender is the slice of the recommendation engine the coordinator uses.
type Recommender interface {
	CreateSession(ctx context.Context, userA, userB string) (string, error)
	SubmitFeedback(ctx context.Context, sessionID string, fb recommend.Feedback) (*recommend.FeedbackResult, error)
	GetRecommendations(ctx context.Context, req recommend.Request) (*recommend.Batch, error)
}
