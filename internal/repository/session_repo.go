package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/moviematch/internal/db"
	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/metrics"
	"github.com/oggyb/moviematch/internal/session"
)

const defaultWriteRetries = 5

// SessionRepository stores swipe sessions as versioned JSON documents.
type SessionRepository struct {
	db      *gorm.DB
	retries int
	log     *slog.Logger
}

// NewSessionRepository creates a new repository bound to the given DB connection.
// retries <= 0 uses the default of 5 optimistic attempts.
func NewSessionRepository(database *gorm.DB, retries int, log *slog.Logger) *SessionRepository {
	if retries <= 0 {
		retries = defaultWriteRetries
	}
	if log == nil {
		log = slog.Default()
	}
	return &SessionRepository{db: database, retries: retries, log: log}
}

var _ session.Store = (*SessionRepository)(nil)

// Create inserts a new session document at version 1.
//
// Behavior:
//   - The code is the primary key; an existing code leaves the table
//     untouched and yields session.ErrCodeTaken.
//   - s.Version is set to the stored version on success.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	s.Version = 1
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.Code, err)
	}
	row := db.SessionDocument{
		Code:     s.Code,
		Version:  s.Version,
		Active:   s.Active,
		Document: doc,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return session.ErrCodeTaken
	}
	return nil
}

// Get loads and decodes the document for code.
func (r *SessionRepository) Get(ctx context.Context, code string) (*session.Session, error) {
	var row db.SessionDocument
	err := r.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %s: %w", code, svcErr.ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeSession(row)
}

// Update applies mutate with optimistic concurrency.
//
// Behavior:
//   - Each attempt reads the document, runs mutate on the decoded copy and
//     writes it back WHERE version matches what was read.
//   - Zero rows updated means another writer won; the attempt is retried
//     from a fresh read, so mutate must be safe to run more than once.
//   - mutate returning changed=false skips the write and returns the
//     snapshot as read.
//   - After the configured attempts ErrWriteConflict is returned.
func (r *SessionRepository) Update(ctx context.Context, code string, mutate session.Mutation) (*session.Session, bool, error) {
	for attempt := 1; attempt <= r.retries; attempt++ {
		current, err := r.Get(ctx, code)
		if err != nil {
			return nil, false, err
		}

		changed, err := mutate(current)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return current, false, nil
		}

		readVersion := current.Version
		current.Version = readVersion + 1
		doc, err := json.Marshal(current)
		if err != nil {
			return nil, false, fmt.Errorf("encode session %s: %w", code, err)
		}

		res := r.db.WithContext(ctx).
			Model(&db.SessionDocument{}).
			Where("code = ? AND version = ?", code, readVersion).
			Updates(map[string]any{
				"version":    current.Version,
				"active":     current.Active,
				"document":   doc,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected == 1 {
			return current, true, nil
		}

		metrics.WriteConflicts.WithLabelValues("retried").Inc()
		r.log.Debug("session write conflict", "session", code, "attempt", attempt, "version", readVersion)
	}

	metrics.WriteConflicts.WithLabelValues("exhausted").Inc()
	return nil, false, fmt.Errorf("session %s: %w", code, svcErr.ErrWriteConflict)
}

func decodeSession(row db.SessionDocument) (*session.Session, error) {
	var s session.Session
	if err := json.Unmarshal(row.Document, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", row.Code, err)
	}
	s.Normalize()
	s.Version = row.Version
	return &s, nil
}
