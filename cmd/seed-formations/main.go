package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/playmatatu/icepitch/internal/config"
	"github.com/playmatatu/icepitch/internal/database"
	"github.com/playmatatu/icepitch/internal/game"
	"github.com/playmatatu/icepitch/internal/migrations"
)

// seed-formations validates a formations TOML file and upserts it, together
// with the built-in formations, into the formations table.
//
//	seed-formations [path]    (defaults to FORMATIONS_FILE)
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	path := cfg.FormationsFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	if err := migrations.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	catalog := game.DefaultFormations()
	if path != "" {
		added, err := game.LoadFormationsFile(path, catalog)
		if err != nil {
			log.Fatalf("Failed to load %s: %v", path, err)
		}
		log.Printf("Validated %d formation(s) from %s", added, path)
	}

	for _, f := range catalog.All() {
		if err := game.SaveFormation(db, f); err != nil {
			log.Fatalf("Failed to save formation %s: %v", f.Name, err)
		}
		log.Printf("✓ %s", f.Name)
	}
	log.Printf("Seeded %d formation(s)", len(catalog.Names()))
}
