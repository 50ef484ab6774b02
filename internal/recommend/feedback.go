package recommend

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/oggyb/moviematch/internal/catalog"
	"github.com/oggyb/moviematch/internal/db"
	"github.com/oggyb/moviematch/internal/metrics"
)

const preferenceLockStripes = 64

// FeedbackProcessor applies feedback to a user's PreferenceModel and tells
// listeners the model changed.
type FeedbackProcessor struct {
	store Store
	cache Cache
	log   *slog.Logger

	// per-user read-modify-write on preferences within this process
	locks [preferenceLockStripes]sync.Mutex

	mu        sync.RWMutex
	listeners []func(userID string)
}

// NewFeedbackProcessor creates a processor. cache may be nil.
func NewFeedbackProcessor(store Store, cache Cache, log *slog.Logger) *FeedbackProcessor {
	if cache == nil {
		cache = noopCache{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &FeedbackProcessor{store: store, cache: cache, log: log}
}

// OnRefresh registers fn to run after a user's preferences change.
func (p *FeedbackProcessor) OnRefresh(fn func(userID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Process loads, updates and saves userID's preferences for one event and
// returns the new model.
func (p *FeedbackProcessor) Process(ctx context.Context, userID string, fb FeedbackType, m catalog.Movie) (*Preferences, error) {
	return p.ProcessWith(ctx, userID, fb, m, p.store.SavePreferences)
}

// ProcessWith is Process with the write delegated to persist, so the new
// preference row can be committed together with other feedback state. When
// persist fails the stored model, the cache and listeners are left untouched.
func (p *FeedbackProcessor) ProcessWith(
	ctx context.Context,
	userID string,
	fb FeedbackType,
	m catalog.Movie,
	persist func(ctx context.Context, row *db.UserPreference) error,
) (*Preferences, error) {
	lock := &p.locks[stripe(userID)]
	lock.Lock()
	defer lock.Unlock()

	row, err := p.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load preferences %s: %w", userID, err)
	}
	prefs := NewPreferences(userID)
	if row != nil {
		prefs = preferencesFromRow(row)
	}

	prefs.Apply(fb, m)

	if err := persist(ctx, prefs.toRow()); err != nil {
		return nil, fmt.Errorf("save preferences %s: %w", userID, err)
	}
	if err := p.cache.InvalidatePreferences(ctx, userID); err != nil {
		p.log.Warn("preference cache invalidation failed", "user", userID, "err", err)
	}
	metrics.FeedbackEvents.WithLabelValues(string(fb)).Inc()

	p.mu.RLock()
	listeners := p.listeners
	p.mu.RUnlock()
	for _, fn := range listeners {
		fn(userID)
	}
	return prefs, nil
}

func stripe(userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return h.Sum32() % preferenceLockStripes
}
