package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/trashtrack/trashtrack/internal/config"
	"github.com/trashtrack/trashtrack/internal/database"
)

func main() {
	var (
		migrationsPath = flag.String("migrations", "", "Path to migrations directory (defaults to MIGRATIONS_PATH)")
		status         = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	cfg := config.Load()
	if *migrationsPath == "" {
		*migrationsPath = cfg.MigrationsPath
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	db, err := database.NewDB(database.Config{
		Type:       cfg.DBType,
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		User:       cfg.DBUser,
		Password:   cfg.DBPassword,
		Name:       cfg.DBName,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	migrator := database.NewMigrator(db.Conn(), db.Type(), logger)

	if *status {
		if err := showStatus(migrator, *migrationsPath); err != nil {
			logger.Fatal().Err(err).Msg("failed to read migration status")
		}
		return
	}

	if err := migrator.Run(*migrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
}

func showStatus(m *database.Migrator, path string) error {
	if err := m.Initialize(); err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	migrations, err := m.LoadMigrations(path)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		state := "pending"
		if applied[mig.Version] {
			state = "applied"
		}
		fmt.Printf("%-10s %s\n", state, mig.Name)
	}
	return nil
}
