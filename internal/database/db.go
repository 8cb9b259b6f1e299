package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		if dir := filepath.Dir(config.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", config.SQLitePath)
		conn, err = sql.Open("sqlite3", dsn)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dbType: config.Type}

	// SQLite schemas are managed in-process; the postgres path goes through
	// the file migrator (cmd/migrate or RunMigrations).
	if config.Type == "sqlite" {
		if err := db.createTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	const query = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id   TEXT PRIMARY KEY,
		device_id    TEXT NOT NULL,
		name         TEXT,
		meal_type    TEXT,
		start_time   TEXT NOT NULL,
		end_time     TEXT,
		duration_sec INTEGER,
		summary_json TEXT,
		created_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS detection_results (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id  TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		category    TEXT NOT NULL,
		amount_kg   REAL,
		confidence  REAL,
		extra_json  TEXT,
		created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);
	CREATE INDEX IF NOT EXISTS idx_results_session ON detection_results(session_id);
	`

	if _, err := db.conn.Exec(query); err != nil {
		return err
	}

	// name and meal_type arrived after the first schema. The ALTER fails with
	// a duplicate-column error on current databases, which is ignored so
	// older ones are upgraded in place.
	for _, stmt := range []string{
		`ALTER TABLE sessions ADD COLUMN name TEXT`,
		`ALTER TABLE sessions ADD COLUMN meal_type TEXT`,
	} {
		db.conn.Exec(stmt)
	}

	return nil
}

// RunMigrations applies pending file migrations. Only meaningful for the
// postgres backend; sqlite tables are created on open.
func (db *DB) RunMigrations(migrationsPath string, logger zerolog.Logger) error {
	return NewMigrator(db.conn, db.dbType, logger).Run(migrationsPath)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Type() string {
	return db.dbType
}
