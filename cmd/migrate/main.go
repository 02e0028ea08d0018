package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/config"
	"github.com/skyroute/booking-backend/internal/database"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [-database-url URL] [-steps N] <up|down|version>")
	flag.PrintDefaults()
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var dbURLFlag string
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	steps := flag.Int("steps", 1, "number of migrations to roll back (down only)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "up":
		if err := database.MigrateUp(db.DB.DB); err != nil {
			logger.Fatalf("Failed to apply migrations: %v", err)
		}
		logger.Info("✓ Migrations applied")
	case "down":
		if err := database.MigrateDown(db.DB.DB, *steps); err != nil {
			logger.Fatalf("Failed to roll back migrations: %v", err)
		}
		logger.WithField("steps", *steps).Info("✓ Migrations rolled back")
	case "version":
		version, dirty, err := database.MigrationVersion(db.DB.DB)
		if err != nil {
			logger.Fatalf("Failed to read migration version: %v", err)
		}
		logger.WithFields(logrus.Fields{
			"version": version,
			"dirty":   dirty,
		}).Info("Current schema version")
	default:
		usage()
		os.Exit(2)
	}
}
