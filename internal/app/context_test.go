package app_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/moviematch/internal/app/apptest"
	"github.com/oggyb/moviematch/internal/metrics"
	"github.com/oggyb/moviematch/internal/recommend"
)

func TestNew_CountsPreferenceRefreshes(t *testing.T) {
	ctx := context.Background()
	appCtx := apptest.New(t)

	id, err := appCtx.Engine.CreateSession(ctx, "alice", "bob")
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.PreferenceRefreshes)
	_, err = appCtx.Engine.SubmitFeedback(ctx, id, recommend.Feedback{UserID: "alice", MovieID: 1, Type: recommend.FeedbackLike})
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PreferenceRefreshes))

	_, err = appCtx.Engine.SubmitFeedback(ctx, "missing", recommend.Feedback{UserID: "alice", MovieID: 2, Type: recommend.FeedbackLike})
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PreferenceRefreshes))
}
