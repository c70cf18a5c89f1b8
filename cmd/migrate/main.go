package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/storefleet/backend/internal/infrastructure/config"
	"github.com/storefleet/backend/internal/infrastructure/logger"
	"github.com/storefleet/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

func main() {
	var logLevel string
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		log.Fatal("Schema migration only applies to database-backed registry storage",
			zap.String("driver", cfg.Database.Driver),
		)
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	kv := persistence.NewGormKV(db.DB)

	switch command {
	case "up":
		if err := kv.Migrate(); err != nil {
			log.Fatal("Schema migration failed", zap.Error(err))
		}
		log.Info("Schema migrated",
			zap.String("driver", cfg.Database.Driver),
			zap.String("table", persistence.KVEntry{}.TableName()),
		)

	case "status":
		hasTable := db.DB.Migrator().HasTable(&persistence.KVEntry{})
		if !hasTable {
			log.Info("Registry storage table does not exist yet, run 'migrate up'")
			return
		}
		var count int64
		if err := db.DB.Model(&persistence.KVEntry{}).Count(&count).Error; err != nil {
			log.Fatal("Failed to inspect registry storage", zap.Error(err))
		}
		log.Info("Registry storage ready",
			zap.String("driver", cfg.Database.Driver),
			zap.Int64("entries", count),
		)

	case "ping":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := kv.Ping(ctx); err != nil {
			log.Fatal("Database unreachable", zap.Error(err))
		}
		log.Info("Database reachable", zap.String("driver", cfg.Database.Driver))

	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`StoreFleet Schema Migration Tool

Applies the registry storage schema for the sqlite and postgres drivers.
The memory and redis drivers need no schema and are rejected.

Usage:
  migrate [flags] <command>

Commands:
  up        Create or update the registry storage schema
  status    Show whether the schema exists and how many entries it holds
  ping      Verify database connectivity

Flags:
  -log-level string     Log level: debug, info, warn, error (default: info)

Configuration is read the same way the server reads it: config.toml plus
STOREFLEET_* environment variables.

Examples:
  # Apply the schema to the configured database
  migrate up

  # Check connectivity against a postgres instance
  STOREFLEET_DATABASE_DRIVER=postgres STOREFLEET_DATABASE_POSTGRES_DSN="host=localhost user=storefleet dbname=storefleet" migrate ping`)
}
