package main

import (
	"flag"
	"log"
	"time"

	"github.com/oggyb/moviematch/internal/config"
	"github.com/oggyb/moviematch/internal/db"
)

func main() {
	count := flag.Int("movies", 500, "number of demo movies to generate")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed for the generated catalog")
	flag.Parse()

	// Load configuration
	cfg := config.New()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	if err := db.SeedCatalog(database, *count, *seed); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Println("Seeding completed.")
}
