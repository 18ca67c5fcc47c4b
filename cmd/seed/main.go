// Command seed populates the database with demo users, forum threads, messages and rooms.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"studyhub/internal/bootstrap"
	"studyhub/internal/config"
	"studyhub/internal/database"
	"studyhub/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numMessages := flag.Int("messages", 300, "Number of direct messages to create")
	numRooms := flag.Int("rooms", 5, "Number of active study rooms to create")
	shouldClean := flag.Bool("clean", false, "Delete every record before seeding")
	fixturePath := flag.String("fixture", "", "Forum fixture YAML (defaults to the embedded one)")
	randSeed := flag.Int64("seed", 0, "Random seed for reproducible data")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	fixture, err := loadFixture(*fixturePath)
	if err != nil {
		log.Fatalf("Failed to load fixture: %v", err)
	}

	s := seed.NewSeeder(db, seed.Options{
		Users:         *numUsers,
		Messages:      *numMessages,
		StudySessions: *numRooms,
		RandSeed:      *randSeed,
	})

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if err := bootstrap.Prepare(context.Background(), cfg, db, bootstrap.Options{}); err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}

	sum, err := s.Run(fixture)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d topics, %d posts, %d messages, %d study rooms",
		sum.Users, sum.Topics, sum.Posts, sum.Messages, sum.StudySessions)
	log.Printf("All seeded users share the password: %s", seed.DefaultPassword)
}

func loadFixture(path string) (*seed.Fixture, error) {
	if path == "" {
		return seed.DefaultFixture()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return seed.LoadFixture(f)
}
