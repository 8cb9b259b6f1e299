package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/trashtrack/trashtrack/internal/models"
	"github.com/trashtrack/trashtrack/internal/session"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting every statement run either standalone or inside RunAtomic.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements session.Store on top of sqlite or postgres. Statements
// use $N placeholders, which both engines accept.
type Store struct {
	db   *DB
	q    querier
	inTx bool
}

func NewStore(db *DB) *Store {
	return &Store{db: db, q: db.conn}
}

// nowExpr is the SQL expression for the current timestamp as text. SQLite's
// CURRENT_TIMESTAMP is already text; postgres needs an explicit cast.
func (s *Store) nowExpr() string {
	if s.db.dbType == "postgres" {
		return "now()::text"
	}
	return "CURRENT_TIMESTAMP"
}

// RunAtomic executes fn against a transaction-bound Store and commits only
// if fn returns nil. Nested calls reuse the enclosing transaction.
func (s *Store) RunAtomic(ctx context.Context, fn func(session.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, device_id, name, meal_type, start_time, end_time, duration_sec, summary_json, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*models.Session, error) {
	var m models.Session
	var summary sql.NullString
	if err := sc.Scan(
		&m.SessionID, &m.DeviceID, &m.Name, &m.MealType,
		&m.StartTime, &m.EndTime, &m.DurationSec,
		&summary, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if summary.Valid {
		m.Summary = json.RawMessage(summary.String)
	}
	return &m, nil
}

// GetSession returns the session row or nil when it does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// UpsertSession inserts the session or, on session_id conflict, overwrites
// every mutable field. session_id and created_at are immutable once set.
func (s *Store) UpsertSession(ctx context.Context, rec models.Session) error {
	var summary any
	if len(rec.Summary) > 0 {
		summary = string(rec.Summary)
	}

	query := `
	INSERT INTO sessions (session_id, device_id, name, meal_type, start_time, end_time, duration_sec, summary_json)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT(session_id) DO UPDATE SET
		device_id    = excluded.device_id,
		name         = excluded.name,
		meal_type    = excluded.meal_type,
		start_time   = excluded.start_time,
		end_time     = excluded.end_time,
		duration_sec = excluded.duration_sec,
		summary_json = excluded.summary_json,
		updated_at   = ` + s.nowExpr()

	if _, err := s.q.ExecContext(ctx, query,
		rec.SessionID, rec.DeviceID, rec.Name, rec.MealType,
		rec.StartTime, rec.EndTime, rec.DurationSec, summary,
	); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// UpdateSessionEnd closes the session, setting end_time and duration_sec in
// one statement.
func (s *Store) UpdateSessionEnd(ctx context.Context, id, endTime string, durationSec int64) error {
	query := `UPDATE sessions SET end_time = $1, duration_sec = $2, updated_at = ` + s.nowExpr() + ` WHERE session_id = $3`
	if _, err := s.q.ExecContext(ctx, query, endTime, durationSec, id); err != nil {
		return fmt.Errorf("failed to update session end: %w", err)
	}
	return nil
}

func (s *Store) UpdateSessionSummary(ctx context.Context, id string, summary []byte) error {
	query := `UPDATE sessions SET summary_json = $1, updated_at = ` + s.nowExpr() + ` WHERE session_id = $2`
	if _, err := s.q.ExecContext(ctx, query, string(summary), id); err != nil {
		return fmt.Errorf("failed to update session summary: %w", err)
	}
	return nil
}

func (s *Store) DeleteResults(ctx context.Context, sessionID string) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM detection_results WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	return nil
}

func (s *Store) InsertResult(ctx context.Context, sessionID string, r models.DetectionResult) error {
	var extra any
	if len(r.Extra) > 0 {
		b, err := json.Marshal(r.Extra)
		if err != nil {
			return fmt.Errorf("failed to marshal extra fields: %w", err)
		}
		extra = string(b)
	}

	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO detection_results (session_id, category, amount_kg, confidence, extra_json)
		 VALUES ($1, $2, $3, $4, $5)`,
		sessionID, r.Category, r.AmountKg, r.Confidence, extra,
	); err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// ListResults returns all detection rows for a session in insertion order,
// with extra fields reconstituted from their stored JSON.
func (s *Store) ListResults(ctx context.Context, sessionID string) ([]models.DetectionResult, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT category, amount_kg, confidence, extra_json
		 FROM detection_results WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []models.DetectionResult
	for rows.Next() {
		var r models.DetectionResult
		var extra sql.NullString
		if err := rows.Scan(&r.Category, &r.AmountKg, &r.Confidence, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &r.Extra); err != nil {
				r.Extra = nil
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListSessions returns one page ordered by start_time descending, plus the
// unfiltered session count.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]models.Session, int, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 ORDER BY start_time DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return sessions, total, nil
}

// CategoryTotals sums weights and counts rows per category for one session,
// heaviest category first.
func (s *Store) CategoryTotals(ctx context.Context, sessionID string) ([]models.CategoryTotal, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT category, SUM(amount_kg) AS total_kg, COUNT(*) AS count
		 FROM detection_results WHERE session_id = $1
		 GROUP BY category ORDER BY total_kg DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query category totals: %w", err)
	}
	defer rows.Close()

	var totals []models.CategoryTotal
	for rows.Next() {
		var t models.CategoryTotal
		if err := rows.Scan(&t.Category, &t.TotalKg, &t.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// GetActiveSession returns the open session (end_time IS NULL), most
// recently created first, or nil when none is open.
func (s *Store) GetActiveSession(ctx context.Context) (*models.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE end_time IS NULL
		 ORDER BY created_at DESC LIMIT 1`)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return sess, nil
}
