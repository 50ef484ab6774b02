package recommend

// Stage is the weighting phase of a recommendation session.
type Stage string

const (
	StageExploration Stage = "exploration"
	StageLearning    Stage = "learning"
	StageConvergence Stage = "convergence"
)

func (s Stage) rank() int {
	switch s {
	case StageLearning:
		return 1
	case StageConvergence:
		return 2
	default:
		return 0
	}
}

// Weights is the blend applied to the genre, embedding and diversity terms.
type Weights struct {
	Genre     float64 `json:"genre"`
	Embedding float64 `json:"embedding"`
	Diversity float64 `json:"diversity"`
}

var stageWeights = map[Stage]Weights{
	StageExploration: {Genre: 0.2, Embedding: 0.1, Diversity: 0.7},
	StageLearning:    {Genre: 0.5, Embedding: 0.3, Diversity: 0.2},
	StageConvergence: {Genre: 0.45, Embedding: 0.45, Diversity: 0.10},
}

var stageDescriptions = map[Stage]string{
	StageExploration: "Exploring broadly to learn what you both enjoy",
	StageLearning:    "Learning your shared taste from recent swipes",
	StageConvergence: "Focusing on movies that fit both of you",
}

// StageScheduler maps an interaction count to a stage.
//
// Stages:
//   - exploration: interactions < ExplorationLimit
//   - learning:    ExplorationLimit <= interactions < LearningLimit
//   - convergence: interactions >= LearningLimit
type StageScheduler struct {
	ExplorationLimit int
	LearningLimit    int
}

// NewStageScheduler builds a scheduler; non-positive or inverted limits fall
// back to 10 and 30.
func NewStageScheduler(explorationLimit, learningLimit int) StageScheduler {
	if explorationLimit <= 0 || learningLimit <= explorationLimit {
		explorationLimit, learningLimit = 10, 30
	}
	return StageScheduler{ExplorationLimit: explorationLimit, LearningLimit: learningLimit}
}

// StageFor is a pure function of the interaction count.
func (s StageScheduler) StageFor(interactions int) Stage {
	switch {
	case interactions < s.ExplorationLimit:
		return StageExploration
	case interactions < s.LearningLimit:
		return StageLearning
	default:
		return StageConvergence
	}
}

// Advance returns the later of current and the stage for interactions, so a
// stored stage never moves backwards even if the limits are retuned.
func (s StageScheduler) Advance(current Stage, interactions int) Stage {
	next := s.StageFor(interactions)
	if current.rank() > next.rank() {
		return current
	}
	return next
}

// Weights returns the blend for stage. Unknown stages use exploration.
func (s StageScheduler) Weights(stage Stage) Weights {
	if w, ok := stageWeights[stage]; ok {
		return w
	}
	return stageWeights[StageExploration]
}

// Describe returns a short user-facing description of stage.
func (s StageScheduler) Describe(stage Stage) string {
	if d, ok := stageDescriptions[stage]; ok {
		return d
	}
	return stageDescriptions[StageExploration]
}
