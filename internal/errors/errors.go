package errors

import "errors"

// Session coordination errors. SessionNotFound, SessionFull and SessionInactive
// are user-facing; the service layer surfaces their messages as-is.
var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionInactive         = errors.New("session is no longer active")
	ErrSessionFull             = errors.New("session is full")
	ErrMemberNotInSession      = errors.New("member is not part of this session")
	ErrCodeGenerationExhausted = errors.New("could not allocate a free session code")

	// ErrWriteConflict is returned when optimistic retries on a session
	// document are exhausted. It is transient; callers may retry.
	ErrWriteConflict = errors.New("concurrent update conflict, please retry")
)

// Recommendation errors. DuplicateSession is benign: the caller re-uses the
// existing id. InsufficientCandidates and AlgorithmUnavailable are recovered
// by falling back to non-personalized selection.
var (
	ErrDuplicateSession              = errors.New("recommendation session already exists for this pair")
	ErrRecommendationSessionNotFound = errors.New("recommendation session not found")
	ErrInsufficientCandidates        = errors.New("no eligible movies left after filtering")
	ErrAlgorithmUnavailable          = errors.New("recommendation backend unavailable")
	ErrMovieNotFound                 = errors.New("movie not found")
	ErrInvalidFeedback               = errors.New("feedback type must be like, dislike or skip")
)

var domainErrors = []error{
	ErrSessionNotFound, ErrSessionInactive, ErrSessionFull, ErrMemberNotInSession,
	ErrCodeGenerationExhausted, ErrWriteConflict, ErrDuplicateSession,
	ErrRecommendationSessionNotFound, ErrInsufficientCandidates, ErrAlgorithmUnavailable,
	ErrMovieNotFound, ErrInvalidFeedback,
}

func isDomain(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// IsFallback reports whether err should be recovered by serving a
// non-personalized batch instead of failing the request.
func IsFallback(err error) bool {
	return errors.Is(err, ErrAlgorithmUnavailable) || errors.Is(err, ErrInsufficientCandidates)
}
