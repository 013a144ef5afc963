// Command migrate applies or rolls back the embedded schema migrations.
//
//	migrate up          apply everything (demo tours only with -seed)
//	migrate down        roll back every migration
//	migrate latest      apply every migration, demo tours included
//	migrate -version N to
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"tour-booking/internal/config"
	"tour-booking/internal/database"
	"tour-booking/internal/database/migrations"
	"tour-booking/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	seed := flag.Bool("seed", false, "also insert the demo tours")
	version := flag.Uint("version", 0, "target version for the 'to' command")
	flag.Parse()

	log := logger.NewLogger("migrate")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	bunDB, err := database.ConnectPostgres(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		AutoMigrate: true,
		SeedData:    *seed || cfg.Database.SeedData,
	}, log)
	defer runner.Close()

	switch command {
	case "up":
		err = runner.RunMigrations()
	case "latest":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		err = runner.MigrateTo(*version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q, want up, latest, down or to\n", command)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("MIGRATION", fmt.Sprintf("%s failed: %v", command, err))
	}
	log.Info("MIGRATION", fmt.Sprintf("%s complete", command))
}
