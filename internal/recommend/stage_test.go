package recommend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/moviematch/internal/recommend"
)

func TestStageFor(t *testing.T) {
	s := recommend.NewStageScheduler(10, 30)

	assert.Equal(t, recommend.StageExploration, s.StageFor(0))
	assert.Equal(t, recommend.StageExploration, s.StageFor(9))
	assert.Equal(t, recommend.StageLearning, s.StageFor(10))
	assert.Equal(t, recommend.StageLearning, s.StageFor(29))
	assert.Equal(t, recommend.StageConvergence, s.StageFor(30))
	assert.Equal(t, recommend.StageConvergence, s.StageFor(1000))
}

func TestNewStageScheduler_InvalidLimits(t *testing.T) {
	for _, limits := range [][2]int{{0, 30}, {10, 10}, {20, 5}, {-1, -1}} {
		s := recommend.NewStageScheduler(limits[0], limits[1])
		assert.Equal(t, 10, s.ExplorationLimit)
		assert.Equal(t, 30, s.LearningLimit)
	}
}

func TestAdvanceNeverRegresses(t *testing.T) {
	s := recommend.NewStageScheduler(10, 30)

	assert.Equal(t, recommend.StageConvergence, s.Advance(recommend.StageConvergence, 0))
	assert.Equal(t, recommend.StageLearning, s.Advance(recommend.StageLearning, 3))
	assert.Equal(t, recommend.StageLearning, s.Advance(recommend.StageExploration, 12))
	assert.Equal(t, recommend.StageExploration, s.Advance("", 0))

	prev := recommend.StageExploration
	for n := 0; n <= 40; n++ {
		next := s.Advance(prev, n)
		assert.GreaterOrEqual(t, stageOrder(next), stageOrder(prev), "n=%d", n)
		prev = next
	}
}

func TestWeightsSumToOne(t *testing.T) {
	s := recommend.NewStageScheduler(10, 30)
	for _, st := range []recommend.Stage{recommend.StageExploration, recommend.StageLearning, recommend.StageConvergence} {
		w := s.Weights(st)
		assert.InDelta(t, 1.0, w.Genre+w.Embedding+w.Diversity, 1e-9, "stage %s", st)
		assert.NotEmpty(t, s.Describe(st))
	}

	assert.Equal(t, recommend.Weights{Genre: 0.2, Embedding: 0.1, Diversity: 0.7}, s.Weights(recommend.StageExploration))
	assert.Equal(t, recommend.Weights{Genre: 0.5, Embedding: 0.3, Diversity: 0.2}, s.Weights(recommend.StageLearning))
	assert.Equal(t, recommend.Weights{Genre: 0.45, Embedding: 0.45, Diversity: 0.10}, s.Weights(recommend.StageConvergence))
}

func stageOrder(s recommend.Stage) int {
	switch s {
	case recommend.StageLearning:
		return 1
	case recommend.StageConvergence:
		return 2
	}
	return 0
}
