package db

import (
	"fmt"
	"log"
	"math/rand"

	"gorm.io/gorm"
)

// EmbeddingDim is the length of the demo embeddings produced by the seeders.
const EmbeddingDim = 16

var seedGenres = []string{
	"Action", "Adventure", "Animation", "Comedy", "Crime", "Documentary",
	"Drama", "Family", "Fantasy", "Horror", "Mystery", "Romance",
	"Science Fiction", "Thriller", "War", "Western",
}

// SeedCatalog resets the movie catalog and populates it with n demo movies.
//
// Behavior:
//  1. Clears existing rows in `movies`.
//  2. Each movie gets 1-3 genres, a rating in [4.0, 9.5], a year in [1970, 2024].
//  3. Embeddings are genre centroids plus noise, so movies sharing genres are
//     close in cosine space.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedCatalog(db *gorm.DB, n int, seed int64) error {
	r := rand.New(rand.NewSource(seed))

	if err := db.Exec("DELETE FROM movies").Error; err != nil {
		return fmt.Errorf("failed to clear movies: %w", err)
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE movies AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name = 'movies'")
	}
	log.Println("Cleared existing catalog")

	centroids := make(map[string][]float32, len(seedGenres))
	for _, g := range seedGenres {
		centroids[g] = randomVector(r)
	}

	movies := make([]Movie, 0, n)
	for i := 1; i <= n; i++ {
		genres := pickGenres(r)
		emb := make([]float32, EmbeddingDim)
		for _, g := range genres {
			for d, v := range centroids[g] {
				emb[d] += v
			}
		}
		for d := range emb {
			emb[d] += float32(r.NormFloat64() * 0.2)
		}

		movies = append(movies, Movie{
			Title:       fmt.Sprintf("Movie %03d", i),
			Description: fmt.Sprintf("A %s picture.", genres[0]),
			ReleaseYear: 1970 + r.Intn(55),
			Genres:      genres,
			Rating:      4.0 + float64(r.Intn(56))/10.0,
			Embedding:   emb,
		})
	}

	if err := db.CreateInBatches(&movies, 100).Error; err != nil {
		return fmt.Errorf("failed to seed movies: %w", err)
	}
	log.Printf("Seeded %d movies.", n)
	return nil
}

// SeedMinimalCatalog inserts a small fixed catalog for repeatable tests.
//
// Dataset (insertion order = ID order):
//  1. Alpha   Action/Thriller   8.1 2010
//  2. Bravo   Comedy/Romance    7.2 2004
//  3. Charlie Action            6.5 1999
//  4. Delta   Drama             5.1 1985 (fails the default quality filter)
//  5. Echo    Comedy            7.9 2015
func SeedMinimalCatalog(db *gorm.DB) error {
	if err := db.Exec("DELETE FROM movies").Error; err != nil {
		return err
	}
	movies := []Movie{
		{ID: 1, Title: "Alpha", Genres: []string{"Action", "Thriller"}, Rating: 8.1, ReleaseYear: 2010, Embedding: []float32{1, 0, 0, 0}},
		{ID: 2, Title: "Bravo", Genres: []string{"Comedy", "Romance"}, Rating: 7.2, ReleaseYear: 2004, Embedding: []float32{0, 1, 0, 0}},
		{ID: 3, Title: "Charlie", Genres: []string{"Action"}, Rating: 6.5, ReleaseYear: 1999, Embedding: []float32{0.9, 0.1, 0, 0}},
		{ID: 4, Title: "Delta", Genres: []string{"Drama"}, Rating: 5.1, ReleaseYear: 1985, Embedding: []float32{0, 0, 1, 0}},
		{ID: 5, Title: "Echo", Genres: []string{"Comedy"}, Rating: 7.9, ReleaseYear: 2015, Embedding: []float32{0.1, 0.9, 0, 0}},
	}
	return db.Create(&movies).Error
}

func pickGenres(r *rand.Rand) []string {
	k := 1 + r.Intn(3)
	idx := r.Perm(len(seedGenres))[:k]
	out := make([]string, 0, k)
	for _, i := range idx {
		out = append(out, seedGenres[i])
	}
	return out
}

func randomVector(r *rand.Rand) []float32 {
	v := make([]float32, EmbeddingDim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}
