package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/trashtrack/trashtrack/internal/models"
)

// fakeStore is an in-memory Store for exercising lifecycle semantics
// without a database. RunAtomic snapshots state and restores it when the
// callback fails, mimicking a rolled-back transaction.
type fakeStore struct {
	sessions map[string]*models.Session
	results  map[string][]models.DetectionResult
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*models.Session),
		results:  make(map[string][]models.DetectionResult),
	}
}

func (f *fakeStore) RunAtomic(ctx context.Context, fn func(Store) error) error {
	savedSessions := make(map[string]*models.Session, len(f.sessions))
	for k, v := range f.sessions {
		c := *v
		savedSessions[k] = &c
	}
	savedResults := make(map[string][]models.DetectionResult, len(f.results))
	for k, v := range f.results {
		savedResults[k] = append([]models.DetectionResult(nil), v...)
	}

	if err := fn(f); err != nil {
		f.sessions = savedSessions
		f.results = savedResults
		return err
	}
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (f *fakeStore) UpsertSession(ctx context.Context, rec models.Session) error {
	if existing, ok := f.sessions[rec.SessionID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		f.seq++
		rec.CreatedAt = fmt.Sprintf("%010d", f.seq)
	}
	f.sessions[rec.SessionID] = &rec
	return nil
}

func (f *fakeStore) UpdateSessionEnd(ctx context.Context, id, endTime string, durationSec int64) error {
	sess := f.sessions[id]
	sess.EndTime = &endTime
	sess.DurationSec = &durationSec
	return nil
}

func (f *fakeStore) UpdateSessionSummary(ctx context.Context, id string, summary []byte) error {
	f.sessions[id].Summary = summary
	return nil
}

func (f *fakeStore) DeleteResults(ctx context.Context, sessionID string) error {
	delete(f.results, sessionID)
	return nil
}

func (f *fakeStore) InsertResult(ctx context.Context, sessionID string, r models.DetectionResult) error {
	f.results[sessionID] = append(f.results[sessionID], r)
	return nil
}

func (f *fakeStore) ListResults(ctx context.Context, sessionID string) ([]models.DetectionResult, error) {
	return append([]models.DetectionResult(nil), f.results[sessionID]...), nil
}

func (f *fakeStore) ListSessions(ctx context.Context, limit, offset int) ([]models.Session, int, error) {
	var all []models.Session
	for _, s := range f.sessions {
		all = append(all, *s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime > all[j].StartTime })
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeStore) CategoryTotals(ctx context.Context, sessionID string) ([]models.CategoryTotal, error) {
	counts := make(map[string]*models.CategoryTotal)
	for _, r := range f.results[sessionID] {
		t, ok := counts[r.Category]
		if !ok {
			t = &models.CategoryTotal{Category: r.Category}
			counts[r.Category] = t
		}
		t.Count++
		if r.AmountKg != nil {
			if t.TotalKg == nil {
				t.TotalKg = new(float64)
			}
			*t.TotalKg += *r.AmountKg
		}
	}
	var totals []models.CategoryTotal
	for _, t := range counts {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool {
		ti, tj := 0.0, 0.0
		if totals[i].TotalKg != nil {
			ti = *totals[i].TotalKg
		}
		if totals[j].TotalKg != nil {
			tj = *totals[j].TotalKg
		}
		return ti > tj
	})
	return totals, nil
}

func (f *fakeStore) GetActiveSession(ctx context.Context) (*models.Session, error) {
	var latest *models.Session
	for _, s := range f.sessions {
		if s.EndTime != nil {
			continue
		}
		if latest == nil || s.CreatedAt > latest.CreatedAt {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func newTestService(store Store) *Service {
	svc := NewService(store, "rpi5-001")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return base }
	n := 0
	svc.NewID = func() string {
		n++
		return fmt.Sprintf("sess-%03d", n)
	}
	return svc
}

func summaryOf(t *testing.T, store *fakeStore, id string) models.Summary {
	t.Helper()
	sess := store.sessions[id]
	if sess == nil {
		t.Fatalf("Session %s not found in store", id)
	}
	var s models.Summary
	if err := json.Unmarshal(sess.Summary, &s); err != nil {
		t.Fatalf("Failed to unmarshal summary %q: %v", sess.Summary, err)
	}
	return s
}

func TestStartCreatesActiveSession(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	name := "lunch rush"
	sess, err := svc.Start(context.Background(), &name, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if sess.SessionID != "sess-001" {
		t.Errorf("Expected generated id sess-001, got %s", sess.SessionID)
	}
	if sess.DeviceID != "rpi5-001" {
		t.Errorf("Expected default device id, got %s", sess.DeviceID)
	}
	if sess.EndTime != nil || sess.DurationSec != nil {
		t.Error("New session must be active: end_time and duration_sec unset")
	}

	s := summaryOf(t, store, sess.SessionID)
	if s.TotalItems != 0 || s.CategoriesDetected != 0 || len(s.CategoryBreakdown) != 0 {
		t.Errorf("Expected zero summary, got %+v", s)
	}
}

func TestStopComputesDuration(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sess, err := svc.Start(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stopAt := time.Date(2025, 6, 1, 12, 1, 30, 0, time.UTC)
	svc.Now = func() time.Time { return stopAt }

	endTime, durationSec, err := svc.Stop(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if durationSec != 90 {
		t.Errorf("Expected duration 90s, got %d", durationSec)
	}
	if endTime != stopAt.Format(time.RFC3339) {
		t.Errorf("Expected end time %s, got %s", stopAt.Format(time.RFC3339), endTime)
	}
}

func TestStopMissingSession(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, _, err := svc.Stop(context.Background(), "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestStopTwiceFailsWithoutMutation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sess, _ := svc.Start(context.Background(), nil, nil)
	firstEnd, firstDur, err := svc.Stop(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("First stop failed: %v", err)
	}

	svc.Now = func() time.Time { return time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC) }

	_, _, err = svc.Stop(context.Background(), sess.SessionID)
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Expected ErrSessionClosed, got %v", err)
	}

	stored := store.sessions[sess.SessionID]
	if *stored.EndTime != firstEnd || *stored.DurationSec != firstDur {
		t.Error("Second stop must not mutate end_time or duration_sec")
	}
}

func TestAppendDetectionsRecomputesSummary(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	sess, _ := svc.Start(ctx, nil, nil)

	kg := 0.5
	conf := 0.9
	total, err := svc.AppendDetections(ctx, sess.SessionID, []models.DetectionResult{
		{Category: "bread", AmountKg: &kg, Confidence: &conf},
	})
	if err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected total 1, got %d", total)
	}

	s := summaryOf(t, store, sess.SessionID)
	if s.TotalItems != 1 || s.CategoriesDetected != 1 || s.CategoryBreakdown["bread"] != 1 {
		t.Errorf("Unexpected summary after first append: %+v", s)
	}

	total, err = svc.AppendDetections(ctx, sess.SessionID, []models.DetectionResult{
		{Category: "bread"},
		{Category: "fruit"},
	})
	if err != nil {
		t.Fatalf("Second append failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}

	s = summaryOf(t, store, sess.SessionID)
	if s.TotalItems != 3 || s.CategoriesDetected != 2 {
		t.Errorf("Unexpected summary after second append: %+v", s)
	}
	if s.CategoryBreakdown["bread"] != 2 || s.CategoryBreakdown["fruit"] != 1 {
		t.Errorf("Unexpected breakdown: %v", s.CategoryBreakdown)
	}
}

func TestAppendSkipsRowsWithoutCategory(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	sess, _ := svc.Start(ctx, nil, nil)

	total, err := svc.AppendDetections(ctx, sess.SessionID, []models.DetectionResult{
		{Extra: map[string]any{"note": "no category"}},
		{Category: "fruit"},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected only the categorized row to land, got total %d", total)
	}
}

func TestAppendEmptyResults(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.AppendDetections(context.Background(), "any", nil)
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("Expected ErrNoResults, got %v", err)
	}
}

func TestAppendToClosedSessionLeavesResultsUnchanged(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	sess, _ := svc.Start(ctx, nil, nil)
	if _, err := svc.AppendDetections(ctx, sess.SessionID, []models.DetectionResult{{Category: "rice"}}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, _, err := svc.Stop(ctx, sess.SessionID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	_, err := svc.AppendDetections(ctx, sess.SessionID, []models.DetectionResult{{Category: "pasta"}})
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Expected ErrSessionClosed, got %v", err)
	}

	rows := store.results[sess.SessionID]
	if len(rows) != 1 || rows[0].Category != "rice" {
		t.Errorf("Result set must be unchanged after failed append, got %v", rows)
	}
}

func TestAppendToMissingSession(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.AppendDetections(context.Background(), "nope", []models.DetectionResult{{Category: "rice"}})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func ingestPayload(id string, results ...models.DetectionResult) models.IngestPayload {
	dur := 120.0
	return models.IngestPayload{
		SessionID: id,
		DeviceID:  "d1",
		StartTime: "2025-06-01T10:00:00Z",
		Duration:  &dur,
		Summary:   json.RawMessage(`{"x":1}`),
		Results:   results,
	}
}

func TestIngestReplacesResultSet(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	if err := svc.Ingest(ctx, ingestPayload("s1", models.DetectionResult{Category: "rice"})); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}
	if err := svc.Ingest(ctx, ingestPayload("s1", models.DetectionResult{Category: "pasta"})); err != nil {
		t.Fatalf("Second ingest failed: %v", err)
	}

	rows := store.results["s1"]
	if len(rows) != 1 || rows[0].Category != "pasta" {
		t.Errorf("Expected exactly one pasta row after replace, got %v", rows)
	}
}

func TestIngestIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	payload := ingestPayload("s1", models.DetectionResult{Category: "rice"}, models.DetectionResult{Category: "soup"})

	if err := svc.Ingest(ctx, payload); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}
	first := *store.sessions["s1"]
	firstRows := append([]models.DetectionResult(nil), store.results["s1"]...)

	if err := svc.Ingest(ctx, payload); err != nil {
		t.Fatalf("Second ingest failed: %v", err)
	}

	second := *store.sessions["s1"]
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Session row diverged on retry:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if len(store.results["s1"]) != len(firstRows) {
		t.Errorf("Result count diverged on retry: %d vs %d", len(firstRows), len(store.results["s1"]))
	}
}

func TestIngestSkipsRowsWithoutCategory(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	payload := ingestPayload("s1",
		models.DetectionResult{Category: "rice"},
		models.DetectionResult{Extra: map[string]any{"weight": 1.0}},
	)
	if err := svc.Ingest(context.Background(), payload); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if len(store.results["s1"]) != 1 {
		t.Errorf("Expected uncategorized row excluded, got %v", store.results["s1"])
	}
}

func TestIngestDuration(t *testing.T) {
	end := "2025-06-01T10:02:00Z"
	badEnd := "2025-06-01T09:00:00Z"
	explicit := 300.0

	tests := []struct {
		name    string
		payload models.IngestPayload
		want    *int64
	}{
		{
			name: "explicit duration preferred over end_time",
			payload: models.IngestPayload{
				StartTime: "2025-06-01T10:00:00Z",
				EndTime:   &end,
				Duration:  &explicit,
			},
			want: ptrInt64(300),
		},
		{
			name: "derived from end_time",
			payload: models.IngestPayload{
				StartTime: "2025-06-01T10:00:00Z",
				EndTime:   &end,
			},
			want: ptrInt64(120),
		},
		{
			name: "negative derivation left unset",
			payload: models.IngestPayload{
				StartTime: "2025-06-01T10:00:00Z",
				EndTime:   &badEnd,
			},
			want: nil,
		},
		{
			name:    "neither present",
			payload: models.IngestPayload{StartTime: "2025-06-01T10:00:00Z"},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ingestDuration(tt.payload)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Expected nil duration, got %d", *got)
			case tt.want != nil && got == nil:
				t.Errorf("Expected duration %d, got nil", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("Expected duration %d, got %d", *tt.want, *got)
			}
		})
	}
}

func ptrInt64(v int64) *int64 { return &v }

func TestListClampsLimitAndOffset(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Start(ctx, nil, nil); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}

	page, err := svc.List(ctx, 500, -10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Limit != 50 {
		t.Errorf("Expected limit clamped to 50, got %d", page.Limit)
	}
	if page.Offset != 0 {
		t.Errorf("Expected offset clamped to 0, got %d", page.Offset)
	}
	if page.Total != 3 {
		t.Errorf("Expected total 3, got %d", page.Total)
	}

	page, err = svc.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Limit != 1 {
		t.Errorf("Expected limit clamped up to 1, got %d", page.Limit)
	}
	if len(page.Sessions) != 1 {
		t.Errorf("Expected 1 session in page, got %d", len(page.Sessions))
	}
}

func TestActiveReturnsMostRecentOpenSession(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, _ := svc.Start(ctx, nil, nil)
	second, _ := svc.Start(ctx, nil, nil)

	active, err := svc.Active(ctx)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active == nil || active.SessionID != second.SessionID {
		t.Errorf("Expected most recently created open session %s, got %+v", second.SessionID, active)
	}

	if _, _, err := svc.Stop(ctx, second.SessionID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	active, err = svc.Active(ctx)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active == nil || active.SessionID != first.SessionID {
		t.Errorf("Expected fallback to %s, got %+v", first.SessionID, active)
	}

	if _, _, err := svc.Stop(ctx, first.SessionID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	active, err = svc.Active(ctx)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active != nil {
		t.Errorf("Expected no active session, got %+v", active)
	}
}
