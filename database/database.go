package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cleanshot/logging"
	"cleanshot/types"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoSession is returned when no stored session matches
var ErrNoSession = errors.New("no saved session")

// Fixed-width UTC layout so created_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// InitDatabase initializes and returns a database connection
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		folder TEXT NOT NULL,
		settings TEXT,
		results TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);`

	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}

	// Early databases had no mode column; every row in them is an organize run
	var hasModeColumn bool
	err = db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('sessions') WHERE name='mode'").Scan(&hasModeColumn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error checking for mode column: %v", err)
	}
	if !hasModeColumn {
		_, err = db.Exec("ALTER TABLE sessions ADD COLUMN mode TEXT NOT NULL DEFAULT 'organize';")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("error adding mode column: %v", err)
		}
		logging.DebugLog("Added 'mode' column to sessions table")
	}

	return db, nil
}

// Store persists run summaries in the sessions table
type Store struct {
	db *sql.DB
}

// Open initializes the database at path and wraps it in a Store
func Open(path string) (*Store, error) {
	db, err := InitDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an initialized database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession inserts or replaces a run summary. A summary without an ID gets one.
func (s *Store) SaveSession(summary types.RunSummary) error {
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	if summary.Timestamp.IsZero() {
		summary.Timestamp = time.Now()
	}
	settings := summary.Settings
	if len(settings) == 0 {
		settings = json.RawMessage("{}")
	}
	results, err := json.Marshal(summary.Results)
	if err != nil {
		return fmt.Errorf("cannot encode results for session %s: %w", summary.ID, err)
	}

	stmt, err := s.db.Prepare(`
		INSERT OR REPLACE INTO sessions (id, created_at, folder, mode, settings, results)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for session %s: %w", summary.ID, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		summary.ID,
		summary.Timestamp.UTC().Format(timeLayout),
		summary.Folder,
		summary.Mode,
		string(settings),
		string(results),
	)
	if err != nil {
		return fmt.Errorf("cannot insert session %s: %w", summary.ID, err)
	}
	return nil
}

const selectSession = `SELECT id, created_at, folder, mode, settings, results FROM sessions`

// LoadLastSession returns the most recent session, optionally of one mode
func (s *Store) LoadLastSession(mode string) (*types.RunSummary, error) {
	query := selectSession
	var args []interface{}
	if mode != "" {
		query += " WHERE mode = ?"
		args = append(args, mode)
	}
	query += " ORDER BY created_at DESC LIMIT 1"

	summary, err := scanSession(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	return summary, err
}

// GetSession returns one session by ID
func (s *Store) GetSession(id string) (*types.RunSummary, error) {
	summary, err := scanSession(s.db.QueryRow(selectSession+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	return summary, err
}

// ListSessions returns up to limit sessions, newest first. limit <= 0 means all.
func (s *Store) ListSessions(limit int) ([]types.RunSummary, error) {
	query := selectSession + " ORDER BY created_at DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []types.RunSummary
	for rows.Next() {
		summary, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *summary)
	}
	return out, rows.Err()
}

// SessionStats contains counts over the stored run history
type SessionStats struct {
	TotalSessions    int
	OrganizeSessions int
	SearchSessions   int
}

// GetSessionStats counts stored sessions per mode
func (s *Store) GetSessionStats() (*SessionStats, error) {
	var stats SessionStats
	rows, err := s.db.Query("SELECT mode, COUNT(*) FROM sessions GROUP BY mode")
	if err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mode string
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, err
		}
		stats.TotalSessions += n
		switch mode {
		case types.ModeOrganize:
			stats.OrganizeSessions = n
		case types.ModeSearch:
			stats.SearchSessions = n
		}
	}
	return &stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.RunSummary, error) {
	var (
		summary           types.RunSummary
		created           string
		settings, results sql.NullString
	)
	if err := row.Scan(&summary.ID, &created, &summary.Folder, &summary.Mode, &settings, &results); err != nil {
		return nil, err
	}

	ts, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("cannot parse stored time for session %s: %v", summary.ID, err)
	}
	summary.Timestamp = ts

	if settings.Valid && settings.String != "" {
		summary.Settings = json.RawMessage(settings.String)
	}
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &summary.Results); err != nil {
			return nil, fmt.Errorf("cannot decode results for session %s: %w", summary.ID, err)
		}
	}
	return &summary, nil
}
