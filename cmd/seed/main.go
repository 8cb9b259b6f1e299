// Command seed fills the database with demo sessions. The default mode
// creates a handful of realistic sessions for dashboard demos; -perf creates
// a larger dataset (one session with a thousand results) for validating list
// performance. All rows go through the same ingest path the device uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/trashtrack/trashtrack/internal/config"
	"github.com/trashtrack/trashtrack/internal/database"
	"github.com/trashtrack/trashtrack/internal/models"
	"github.com/trashtrack/trashtrack/internal/session"
)

var demoCategories = []string{
	"bread", "fruit", "vegetables", "dairy", "meat", "rice", "pasta",
	"salad", "soup", "dessert", "cereal", "beans", "eggs", "fish",
	"potatoes", "noodles", "pizza", "sandwich", "juice", "coffee_grounds",
}

func main() {
	var (
		count = flag.Int("count", 10, "Number of sessions to generate")
		perf  = flag.Bool("perf", false, "Generate the larger performance dataset (100 sessions, first with 1000 results)")
	)
	flag.Parse()

	cfg := config.Load()
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
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	svc := session.NewService(database.NewStore(db), cfg.DefaultDeviceID)
	ctx := context.Background()
	start := time.Now()

	n := *count
	if *perf {
		n = 100
	}

	for i := 1; i <= n; i++ {
		payload := generateSession(i, *perf)
		if err := svc.Ingest(ctx, payload); err != nil {
			logger.Fatal().Err(err).Str("session_id", payload.SessionID).Msg("ingest failed")
		}
		logger.Info().
			Str("session_id", payload.SessionID).
			Int("results", len(payload.Results)).
			Msg("seeded session")
	}

	logger.Info().Int("sessions", n).Dur("elapsed", time.Since(start)).Msg("done")
}

func generateSession(index int, perf bool) models.IngestPayload {
	var (
		sessionID string
		deviceID  string
		startAt   time.Time
		results   []models.DetectionResult
	)

	if perf {
		sessionID = fmt.Sprintf("perf-sess-%04d", index)
		deviceID = "pi-perf"
		startAt = time.Now().Add(-time.Duration(index) * 30 * time.Minute)
		numResults := rand.Intn(50) + 5
		if index == 1 {
			numResults = 1000
		}
		for j := 0; j < numResults; j++ {
			results = append(results, randomResult(demoCategories[j%len(demoCategories)], 0.01, 10.0, 0.5))
		}
	} else {
		sessionID = fmt.Sprintf("seed-sess-%03d", index)
		deviceID = "pi-01"
		startAt = time.Now().Add(-time.Duration(index) * 3 * time.Hour)
		numResults := rand.Intn(8) + 2
		for _, j := range rand.Perm(len(demoCategories))[:numResults] {
			results = append(results, randomResult(demoCategories[j], 0.1, 5.0, 0.7))
		}
	}

	endAt := startAt.Add(time.Hour)
	endTime := endAt.UTC().Format(time.RFC3339)

	var totalKg float64
	for _, r := range results {
		totalKg += *r.AmountKg
	}
	summary := fmt.Sprintf(`{"total_waste_kg": %.2f, "total_detections": %d}`, totalKg, len(results))

	return models.IngestPayload{
		SessionID: sessionID,
		DeviceID:  deviceID,
		StartTime: startAt.UTC().Format(time.RFC3339),
		EndTime:   &endTime,
		Summary:   []byte(summary),
		Results:   results,
	}
}

func randomResult(category string, minKg, maxKg, minConf float64) models.DetectionResult {
	amount := roundCents(minKg + rand.Float64()*(maxKg-minKg))
	conf := roundCents(minConf + rand.Float64()*(1.0-minConf))
	return models.DetectionResult{
		Category:   category,
		AmountKg:   &amount,
		Confidence: &conf,
	}
}

func roundCents(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
