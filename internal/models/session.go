package models

import "encoding/json"

// Session is one bounded period of waste-detection monitoring. A session is
// active while EndTime is nil; closing it sets EndTime and DurationSec
// together.
type Session struct {
	SessionID   string          `json:"session_id"`
	DeviceID    string          `json:"device_id"`
	Name        *string         `json:"name,omitempty"`
	MealType    *string         `json:"meal_type,omitempty"`
	StartTime   string          `json:"start_time"`
	EndTime     *string         `json:"end_time"`
	DurationSec *int64          `json:"duration_sec"`
	Summary     json.RawMessage `json:"summary"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"-"`
}

// Summary is the persisted aggregate attached to a session, recomputed from
// the full detection set after every append.
type Summary struct {
	TotalItems         int            `json:"total_items"`
	CategoriesDetected int            `json:"categories_detected"`
	CategoryBreakdown  map[string]int `json:"category_breakdown"`
}

// CategoryTotal is the read-side per-category weight rollup shown in the
// session list. TotalKg is nil when none of the rows carried a weight.
type CategoryTotal struct {
	Category string   `json:"category"`
	TotalKg  *float64 `json:"total_kg"`
	Count    int      `json:"count"`
}

// SessionWithCategories is a list entry: the session plus its category
// rollup ordered by total weight descending.
type SessionWithCategories struct {
	Session
	Categories []CategoryTotal `json:"categories"`
}

// SessionPage is one page of the session list.
type SessionPage struct {
	Sessions []SessionWithCategories `json:"sessions"`
	Total    int                     `json:"total"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
}

// SessionDetail is the single-session view with raw detection results.
type SessionDetail struct {
	Session
	Results []DetectionResult `json:"results"`
}

// IngestPayload is the typed form of a validated bulk-ingest request.
type IngestPayload struct {
	SessionID string
	DeviceID  string
	Name      *string
	MealType  *string
	StartTime string
	EndTime   *string
	Duration  *float64
	Summary   json.RawMessage
	Results   []DetectionResult
}
