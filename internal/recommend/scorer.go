package recommend

import "github.com/oggyb/moviematch/internal/catalog"

const neutralScore = 0.5

// Compatibility blends two users' scores on one axis. The min term keeps a
// movie low when either partner dislikes it; the mean term separates
// candidates that share the same min.
//
//	Compatibility(0.8, 0.4) = 0.7*0.4 + 0.3*0.6 = 0.46
func Compatibility(u1, u2 float64) float64 {
	lo := u1
	if u2 < lo {
		lo = u2
	}
	return 0.7*lo + 0.3*((u1+u2)/2)
}

// GenreScore averages the user's affinity over the movie's genres. Unseen
// genres count as 0.5, and a movie with no genres scores 0.5.
func GenreScore(prefs map[string]float64, genres []string) float64 {
	genres = uniqueGenres(genres)
	if len(genres) == 0 {
		return neutralScore
	}
	var sum float64
	for _, g := range genres {
		if v, ok := prefs[g]; ok {
			sum += v
		} else {
			sum += neutralScore
		}
	}
	return sum / float64(len(genres))
}

// GenreScores returns the per-genre affinities used by GenreScore.
func GenreScores(prefs map[string]float64, genres []string) map[string]float64 {
	out := make(map[string]float64, len(genres))
	for _, g := range uniqueGenres(genres) {
		if v, ok := prefs[g]; ok {
			out[g] = v
		} else {
			out[g] = neutralScore
		}
	}
	return out
}

// SemanticScore rescales the cosine between the user's taste vector and the
// movie embedding from [-1,1] to [0,1]. Missing or mismatched vectors score 0.5.
func SemanticScore(user []float64, movie []float32) float64 {
	cos, ok := catalog.Cosine(user, movie)
	if !ok {
		return neutralScore
	}
	return clamp01((cos + 1) / 2)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
