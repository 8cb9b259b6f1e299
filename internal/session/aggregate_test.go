package session

import (
	"reflect"
	"testing"

	"github.com/trashtrack/trashtrack/internal/models"
)

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)

	if s.TotalItems != 0 {
		t.Errorf("Expected 0 total items, got %d", s.TotalItems)
	}
	if s.CategoriesDetected != 0 {
		t.Errorf("Expected 0 categories, got %d", s.CategoriesDetected)
	}
	if s.CategoryBreakdown == nil {
		t.Error("Expected non-nil breakdown so the zero summary marshals as {}")
	}
	if len(s.CategoryBreakdown) != 0 {
		t.Errorf("Expected empty breakdown, got %v", s.CategoryBreakdown)
	}
}

func TestSummarizeCounts(t *testing.T) {
	results := []models.DetectionResult{
		{Category: "bread"},
		{Category: "bread"},
		{Category: "fruit"},
	}

	s := Summarize(results)

	if s.TotalItems != 3 {
		t.Errorf("Expected 3 total items, got %d", s.TotalItems)
	}
	if s.CategoriesDetected != 2 {
		t.Errorf("Expected 2 categories, got %d", s.CategoriesDetected)
	}
	want := map[string]int{"bread": 2, "fruit": 1}
	if !reflect.DeepEqual(s.CategoryBreakdown, want) {
		t.Errorf("Expected breakdown %v, got %v", want, s.CategoryBreakdown)
	}
}

func TestSummarizeBreakdownSumsToTotal(t *testing.T) {
	results := []models.DetectionResult{
		{Category: "rice"},
		{Category: "pasta"},
		{Category: "rice"},
		{Category: "soup"},
		{Category: "rice"},
	}

	s := Summarize(results)

	sum := 0
	for _, n := range s.CategoryBreakdown {
		sum += n
	}
	if sum != s.TotalItems {
		t.Errorf("Breakdown sums to %d, want total items %d", sum, s.TotalItems)
	}
}
