package session

import "github.com/trashtrack/trashtrack/internal/models"

// Summarize computes the persisted aggregate for a session from its full
// detection set. It counts rows and distinct categories only; weight totals
// are a read-side concern and never part of the stored summary.
func Summarize(results []models.DetectionResult) models.Summary {
	breakdown := make(map[string]int, len(results))
	for _, r := range results {
		breakdown[r.Category]++
	}
	return models.Summary{
		TotalItems:         len(results),
		CategoriesDetected: len(breakdown),
		CategoryBreakdown:  breakdown,
	}
}
