package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/moviematch/internal/db"
	"github.com/oggyb/moviematch/internal/db/dbtest"
	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/recommend"
	"github.com/oggyb/moviematch/internal/repository"
)

func keepStage(current string, _ int) string { return current }

func record(sessionID, user, partner string, movie int64, fb recommend.FeedbackType) recommend.FeedbackRecord {
	return recommend.FeedbackRecord{SessionID: sessionID, UserID: user, PartnerID: partner, MovieID: movie, Feedback: fb}
}

func TestCreateSessionDuplicatePair(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRecommendationRepository(dbtest.Open(t))

	rs, err := repo.CreateSession(ctx, "s-1", "alice", "bob")
	assert.NoError(t, err)
	assert.Equal(t, "s-1", rs.ID)

	// same pair, new id → existing row comes back
	dup, err := repo.CreateSession(ctx, "s-2", "alice", "bob")
	assert.ErrorIs(t, err, svcErr.ErrDuplicateSession)
	assert.Equal(t, "s-1", dup.ID)

	_, err = repo.GetSession(ctx, "s-2")
	assert.ErrorIs(t, err, svcErr.ErrRecommendationSessionNotFound)

	_, err = repo.FindByPair(ctx, "bob", "carol")
	assert.ErrorIs(t, err, svcErr.ErrRecommendationSessionNotFound)
}

func TestRecordFeedbackOverwritesDecision(t *testing.T) {
	ctx := context.Background()
	dbase := dbtest.Open(t)
	repo := repository.NewRecommendationRepository(dbase)
	_, err := repo.CreateSession(ctx, "s-1", "alice", "bob")
	assert.NoError(t, err)

	// insert like
	_, _, err = repo.RecordFeedback(ctx, record("s-1", "alice", "bob", 7, recommend.FeedbackLike), keepStage)
	assert.NoError(t, err)

	// overwrite with dislike
	_, _, err = repo.RecordFeedback(ctx, record("s-1", "alice", "bob", 7, recommend.FeedbackDislike), keepStage)
	assert.NoError(t, err)

	var decisions []db.FeedbackDecision
	assert.NoError(t, dbase.Find(&decisions).Error)
	assert.Len(t, decisions, 1)
	assert.Equal(t, "dislike", decisions[0].FeedbackType)

	var events int64
	assert.NoError(t, dbase.Model(&db.FeedbackEvent{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)

	liked, err := repo.HasLiked(ctx, "s-1", "alice", 7)
	assert.NoError(t, err)
	assert.False(t, liked)
}

func TestRecordFeedbackMutualLike(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRecommendationRepository(dbtest.Open(t))
	_, err := repo.CreateSession(ctx, "s-1", "alice", "bob")
	require.NoError(t, err)

	steps := []struct {
		user, partner string
		fb            recommend.FeedbackType
		mutual        bool
		mutualLikes   int
	}{
		{"alice", "bob", recommend.FeedbackLike, false, 0},
		{"bob", "alice", recommend.FeedbackSkip, false, 0},
		{"bob", "alice", recommend.FeedbackLike, true, 1},
		{"bob", "alice", recommend.FeedbackLike, false, 1}, // repeated like
		{"alice", "bob", recommend.FeedbackLike, false, 1},
	}
	for i, s := range steps {
		rs, mutual, err := repo.RecordFeedback(ctx, record("s-1", s.user, s.partner, 3, s.fb), keepStage)
		require.NoError(t, err)
		assert.Equal(t, s.mutual, mutual, "step %d", i)
		assert.Equal(t, s.mutualLikes, rs.MutualLikes, "step %d", i)
		assert.Equal(t, i+1, rs.TotalInteractions, "step %d", i)
	}

	liked, err := repo.HasLiked(ctx, "s-1", "bob", 3)
	assert.NoError(t, err)
	assert.True(t, liked)
}

func TestRecordFeedbackStageAndUnknownSession(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRecommendationRepository(dbtest.Open(t))
	_, err := repo.CreateSession(ctx, "s-1", "alice", "bob")
	require.NoError(t, err)

	next := func(_ string, total int) string {
		if total >= 2 {
			return "learning"
		}
		return "exploration"
	}
	rs, _, err := repo.RecordFeedback(ctx, record("s-1", "alice", "bob", 1, recommend.FeedbackLike), next)
	require.NoError(t, err)
	assert.Equal(t, "exploration", rs.Stage)
	rs, _, err = repo.RecordFeedback(ctx, record("s-1", "bob", "alice", 2, recommend.FeedbackLike), next)
	require.NoError(t, err)
	assert.Equal(t, "learning", rs.Stage)

	stored, err := repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "learning", stored.Stage)
	assert.Equal(t, 2, stored.TotalInteractions)

	_, _, err = repo.RecordFeedback(ctx, record("nope", "alice", "bob", 1, recommend.FeedbackLike), next)
	assert.ErrorIs(t, err, svcErr.ErrRecommendationSessionNotFound)
}

func TestDecidedMovieIDsAndCounts(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRecommendationRepository(dbtest.Open(t))
	_, err := repo.CreateSession(ctx, "s-1", "alice", "bob")
	require.NoError(t, err)

	for _, r := range []recommend.FeedbackRecord{
		record("s-1", "alice", "bob", 5, recommend.FeedbackLike),
		record("s-1", "bob", "alice", 5, recommend.FeedbackDislike),
		record("s-1", "bob", "alice", 2, recommend.FeedbackSkip),
		record("s-1", "alice", "bob", 9, recommend.FeedbackLike),
	} {
		_, _, err := repo.RecordFeedback(ctx, r, keepStage)
		require.NoError(t, err)
	}

	decided, err := repo.DecidedMovieIDs(ctx, "s-1")
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 5, 9}, decided)

	counts, err := repo.FeedbackCounts(ctx, "s-1")
	assert.NoError(t, err)
	assert.Equal(t, map[string]int{"like": 2}, counts["alice"])
	assert.Equal(t, map[string]int{"dislike": 1, "skip": 1}, counts["bob"])
}

func TestSaveAndGetPreferences(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRecommendationRepository(dbtest.Open(t))

	missing, err := repo.GetPreferences(ctx, "alice")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	p := &db.UserPreference{
		UserID:              "alice",
		GenrePreferences:    map[string]float64{"Drama": 0.75},
		GenreCounts:         map[string]int{"Drama": 1},
		EmbeddingVector:     []float64{0.5, 0.5},
		LikedCount:          1,
		RatingThreshold:     6,
		YearPreferenceStart: 1990,
		TotalInteractions:   1,
	}
	assert.NoError(t, repo.SavePreferences(ctx, p))

	// upsert replaces the model
	p.GenrePreferences["Drama"] = 0.8
	p.TotalInteractions = 2
	assert.NoError(t, repo.SavePreferences(ctx, p))

	got, err := repo.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.GenrePreferences["Drama"])
	assert.Equal(t, 2, got.TotalInteractions)
	assert.Equal(t, []float64{0.5, 0.5}, got.EmbeddingVector)
}

func TestRecordFeedbackWritesPreferencesAtomically(t *testing.T) {
	ctx := context.Background()
	dbase := dbtest.Open(t)
	repo := repository.NewRecommendationRepository(dbase)
	_, err := repo.CreateSession(ctx, "s-1", "alice", "bob")
	require.NoError(t, err)

	prefs := func(total int) *db.UserPreference {
		return &db.UserPreference{
			UserID:              "alice",
			GenrePreferences:    map[string]float64{"Action": 0.75},
			GenreCounts:         map[string]int{"Action": 1},
			RatingThreshold:     6,
			YearPreferenceStart: 1990,
			TotalInteractions:   total,
		}
	}

	t.Run("Committed with the event", func(t *testing.T) {
		rec := record("s-1", "alice", "bob", 1, recommend.FeedbackLike)
		rec.Preferences = prefs(1)
		rs, _, err := repo.RecordFeedback(ctx, rec, keepStage)
		require.NoError(t, err)
		assert.Equal(t, 1, rs.TotalInteractions)

		stored, err := repo.GetPreferences(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, 1, stored.TotalInteractions)
		assert.Equal(t, 0.75, stored.GenrePreferences["Action"])
	})

	t.Run("Rolled back with the event", func(t *testing.T) {
		// the event log insert runs after the preference upsert and now fails
		require.NoError(t, dbase.Migrator().DropTable(&db.FeedbackEvent{}))

		rec := record("s-1", "alice", "bob", 2, recommend.FeedbackLike)
		rec.Preferences = prefs(2)
		_, _, err := repo.RecordFeedback(ctx, rec, keepStage)
		assert.Error(t, err)

		stored, err := repo.GetPreferences(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, stored.TotalInteractions)

		rs, err := repo.GetSession(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, 1, rs.TotalInteractions)

		liked, err := repo.HasLiked(ctx, "s-1", "alice", 2)
		require.NoError(t, err)
		assert.False(t, liked)
	})
}
