package main

import (
	"os"

	"github.com/oggyb/amora/internal/config"
	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(database); err != nil {
		log.Error("failed to migrate", "err", err)
		os.Exit(1)
	}
	if err := db.SeedPlans(database); err != nil {
		log.Error("failed to seed plans", "err", err)
		os.Exit(1)
	}
	if err := db.SeedTestData(database, log); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed")
}
