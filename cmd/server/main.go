package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/trashtrack/trashtrack/internal/api"
	"github.com/trashtrack/trashtrack/internal/config"
	"github.com/trashtrack/trashtrack/internal/database"
	"github.com/trashtrack/trashtrack/internal/session"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)

	db, err := database.NewDB(databaseConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.MigrationsPath, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	store := database.NewStore(db)
	sessions := session.NewService(store, cfg.DefaultDeviceID)

	app := &api.App{
		Sessions: sessions,
		Config:   cfg,
		Log:      logger,
	}
	router := api.NewRouter(app)

	logger.Info().
		Str("port", cfg.Port).
		Str("db_type", cfg.DBType).
		Str("device_id", cfg.DefaultDeviceID).
		Msg("server starting")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Type:       cfg.DBType,
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		User:       cfg.DBUser,
		Password:   cfg.DBPassword,
		Name:       cfg.DBName,
		SQLitePath: cfg.SQLitePath,
	}
}
