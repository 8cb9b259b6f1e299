package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/trashtrack/trashtrack/internal/models"
)

// Store is the persistence contract the lifecycle service depends on. The
// sqlite/postgres implementation lives in internal/database. RunAtomic
// executes the callback against a transaction-bound Store; every
// multi-statement mutation below goes through it so readers never observe a
// half-updated session.
type Store interface {
	RunAtomic(ctx context.Context, fn func(Store) error) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpsertSession(ctx context.Context, rec models.Session) error
	UpdateSessionEnd(ctx context.Context, id, endTime string, durationSec int64) error
	UpdateSessionSummary(ctx context.Context, id string, summary []byte) error
	DeleteResults(ctx context.Context, sessionID string) error
	InsertResult(ctx context.Context, sessionID string, r models.DetectionResult) error
	ListResults(ctx context.Context, sessionID string) ([]models.DetectionResult, error)
	ListSessions(ctx context.Context, limit, offset int) ([]models.Session, int, error)
	CategoryTotals(ctx context.Context, sessionID string) ([]models.CategoryTotal, error)
	GetActiveSession(ctx context.Context) (*models.Session, error)
}

// Service governs the session lifecycle: start, stop, incremental appends
// and idempotent bulk ingest, plus the read paths the dashboard uses.
type Service struct {
	store    Store
	deviceID string

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// NewService builds a Service. defaultDeviceID is attached to sessions
// created via Start; bulk-ingested sessions carry their own device id.
func NewService(store Store, defaultDeviceID string) *Service {
	return &Service{
		store:    store,
		deviceID: defaultDeviceID,
		Now:      time.Now,
		NewID:    func() string { return uuid.New().String() },
	}
}

// Start creates a new active session with a zero summary.
func (s *Service) Start(ctx context.Context, name, mealType *string) (*models.Session, error) {
	summary, err := json.Marshal(Summarize(nil))
	if err != nil {
		return nil, fmt.Errorf("marshal zero summary: %w", err)
	}

	rec := models.Session{
		SessionID: s.NewID(),
		DeviceID:  s.deviceID,
		Name:      name,
		MealType:  mealType,
		StartTime: s.Now().UTC().Format(time.RFC3339),
		Summary:   summary,
	}

	if err := s.store.UpsertSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &rec, nil
}

// Stop closes an active session. Closing is one-way and non-idempotent:
// a second Stop fails with ErrSessionClosed without touching the row.
func (s *Service) Stop(ctx context.Context, id string) (endTime string, durationSec int64, err error) {
	err = s.store.RunAtomic(ctx, func(st Store) error {
		sess, err := st.GetSession(ctx, id)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if sess == nil {
			return ErrSessionNotFound
		}
		if sess.EndTime != nil {
			return ErrSessionClosed
		}

		start, err := ParseTimestamp(sess.StartTime)
		if err != nil {
			return fmt.Errorf("stored start_time unparseable: %w", err)
		}

		now := s.Now().UTC()
		durationSec = int64(math.Round(now.Sub(start).Seconds()))
		if durationSec < 0 {
			durationSec = 0
		}
		endTime = now.Format(time.RFC3339)

		return st.UpdateSessionEnd(ctx, id, endTime, durationSec)
	})
	if err != nil {
		return "", 0, err
	}
	return endTime, durationSec, nil
}

// Ingest upserts a complete session record delivered by the device,
// replacing its entire detection set when the payload carries results.
// Retrying with the same payload converges to the same final state.
func (s *Service) Ingest(ctx context.Context, p models.IngestPayload) error {
	rec := models.Session{
		SessionID:   p.SessionID,
		DeviceID:    p.DeviceID,
		Name:        p.Name,
		MealType:    p.MealType,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		DurationSec: ingestDuration(p),
		Summary:     p.Summary,
	}

	return s.store.RunAtomic(ctx, func(st Store) error {
		if err := st.UpsertSession(ctx, rec); err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		if len(p.Results) == 0 {
			return nil
		}
		if err := st.DeleteResults(ctx, p.SessionID); err != nil {
			return fmt.Errorf("clear previous results: %w", err)
		}
		for _, r := range p.Results {
			if r.Category == "" {
				continue
			}
			if err := st.InsertResult(ctx, p.SessionID, r); err != nil {
				return fmt.Errorf("insert result: %w", err)
			}
		}
		return nil
	})
}

// ingestDuration prefers an explicit duration over one derived from the
// end_time/start_time pair. A negative or unparseable derivation leaves the
// duration unset rather than failing the ingest.
func ingestDuration(p models.IngestPayload) *int64 {
	if p.Duration != nil {
		d := int64(math.Round(*p.Duration))
		return &d
	}
	if p.EndTime == nil {
		return nil
	}
	start, err := ParseTimestamp(p.StartTime)
	if err != nil {
		return nil
	}
	end, err := ParseTimestamp(*p.EndTime)
	if err != nil {
		return nil
	}
	secs := math.Round(end.Sub(start).Seconds())
	if secs < 0 {
		return nil
	}
	d := int64(secs)
	return &d
}

// AppendDetections adds result rows to an open session and recomputes the
// summary from the full stored set, all in one transaction. Returns the new
// total detection count.
func (s *Service) AppendDetections(ctx context.Context, id string, results []models.DetectionResult) (int, error) {
	if len(results) == 0 {
		return 0, ErrNoResults
	}

	var total int
	err := s.store.RunAtomic(ctx, func(st Store) error {
		sess, err := st.GetSession(ctx, id)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if sess == nil {
			return ErrSessionNotFound
		}
		if sess.EndTime != nil {
			return ErrSessionClosed
		}

		for _, r := range results {
			// Rows without a category are dropped rather than rejected so a
			// live device stream is not interrupted by one malformed entry.
			if r.Category == "" {
				continue
			}
			if err := st.InsertResult(ctx, id, r); err != nil {
				return fmt.Errorf("insert result: %w", err)
			}
		}

		all, err := st.ListResults(ctx, id)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		summary, err := json.Marshal(Summarize(all))
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		if err := st.UpdateSessionSummary(ctx, id, summary); err != nil {
			return fmt.Errorf("update summary: %w", err)
		}

		total = len(all)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// List returns one page of sessions, most recent start first, each with its
// per-category weight rollup. limit is clamped to [1, 50] and offset to >= 0.
func (s *Service) List(ctx context.Context, limit, offset int) (*models.SessionPage, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sessions, total, err := s.store.ListSessions(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	page := &models.SessionPage{
		Sessions: make([]models.SessionWithCategories, 0, len(sessions)),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}
	for _, sess := range sessions {
		cats, err := s.store.CategoryTotals(ctx, sess.SessionID)
		if err != nil {
			return nil, fmt.Errorf("category totals for %s: %w", sess.SessionID, err)
		}
		if cats == nil {
			cats = []models.CategoryTotal{}
		}
		page.Sessions = append(page.Sessions, models.SessionWithCategories{
			Session:    sess,
			Categories: cats,
		})
	}
	return page, nil
}

// Get returns one session with its raw detection results.
func (s *Service) Get(ctx context.Context, id string) (*models.SessionDetail, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	results, err := s.store.ListResults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []models.DetectionResult{}
	}

	return &models.SessionDetail{Session: *sess, Results: results}, nil
}

// Active returns the current active session, or nil when none is open.
// If several sessions are somehow open at once, the most recently created
// wins.
func (s *Service) Active(ctx context.Context) (*models.Session, error) {
	sess, err := s.store.GetActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	return sess, nil
}
