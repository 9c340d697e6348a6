package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed session store.
func NewSQLite(dbPath string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency. The _pragma
	// parameters apply to every pooled connection, not just the first.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		resume_token TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		last_activity_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_idle ON sessions(last_activity_at)
		WHERE status IN ('created', 'active', 'paused');

	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// CreateSession persists a brand-new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	query := `
	INSERT INTO sessions (session_id, resume_token, status, version, last_activity_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sess.SessionID, sess.ResumeToken, string(sess.Status), sess.Version,
		sess.LastActivityAt.Unix(), sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
	)
	if err != nil {
		return wrapStoreErr("insert session", err)
	}
	return nil
}

// GetSession retrieves a session with its full dialogue history.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.getSessionBy(ctx, "session_id", sessionID)
}

// GetSessionByToken resolves a resume token to its session record.
func (s *SQLiteStore) GetSessionByToken(ctx context.Context, resumeToken string) (*domain.Session, error) {
	return s.getSessionBy(ctx, "resume_token", resumeToken)
}

func (s *SQLiteStore) getSessionBy(ctx context.Context, column, value string) (*domain.Session, error) {
	query := fmt.Sprintf(`
		SELECT session_id, resume_token, status, version, last_activity_at, created_at, updated_at
		FROM sessions WHERE %s = ?`, column)

	row := s.db.QueryRowContext(ctx, query, value)

	var sess domain.Session
	var status string
	var lastActivity, createdAt, updatedAt int64

	err := row.Scan(
		&sess.SessionID, &sess.ResumeToken, &status, &sess.Version,
		&lastActivity, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("scan session row", err)
	}

	sess.Status = domain.Status(status)
	sess.LastActivityAt = time.Unix(lastActivity, 0)
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)

	turns, err := s.getTurns(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	sess.Dialogue = turns

	return &sess, nil
}

func (s *SQLiteStore) getTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	query := `
		SELECT role, content, recorded_at, version
		FROM turns WHERE session_id = ? ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, wrapStoreErr("query turns", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close turns rows", "error", closeErr)
		}
	}()

	var turns []domain.Turn
	for rows.Next() {
		var turn domain.Turn
		var role string
		var recordedAt int64

		if err := rows.Scan(&role, &turn.Content, &recordedAt, &turn.Version); err != nil {
			return nil, wrapStoreErr("scan turn row", err)
		}
		turn.Role = domain.Role(role)
		turn.Timestamp = time.Unix(recordedAt, 0)
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("iterate turns", err)
	}

	return turns, nil
}

// UpdateSession writes status/version/activity conditioned on expectedVersion,
// appending turn in the same transaction when present. Rolls back entirely on
// any failure so history and status never diverge.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *domain.Session, turn *domain.Turn, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreErr("begin update tx", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back session update", "error", rollbackErr, "session_id", sess.SessionID)
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE sessions SET status = ?, version = ?, last_activity_at = ?, updated_at = ?
		WHERE session_id = ? AND version = ?`,
		string(sess.Status), sess.Version, sess.LastActivityAt.Unix(), time.Now().Unix(),
		sess.SessionID, expectedVersion,
	)
	if err != nil {
		return wrapStoreErr("update session", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return wrapStoreErr("get rows affected", err)
	}
	if rows == 0 {
		// Distinguish a missing session from a lost version race.
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM sessions WHERE session_id = ?`, sess.SessionID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return wrapStoreErr("check session version", err)
		}
		return fmt.Errorf("%w: session %s at version %d, caller expected %d",
			domain.ErrStaleWrite, sess.SessionID, current, expectedVersion)
	}

	if turn != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO turns (session_id, seq, role, content, recorded_at, version)
			VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?), ?, ?, ?, ?)`,
			sess.SessionID, sess.SessionID,
			string(turn.Role), turn.Content, turn.Timestamp.Unix(), turn.Version,
		)
		if err != nil {
			return wrapStoreErr("insert turn", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreErr("commit session update", err)
	}
	return nil
}

// GetIdleSessions returns non-terminal sessions idle for at least the given duration.
func (s *SQLiteStore) GetIdleSessions(ctx context.Context, idle time.Duration) ([]*domain.Session, error) {
	threshold := time.Now().Add(-idle).Unix()
	query := `
		SELECT session_id, resume_token, status, version, last_activity_at, created_at, updated_at
		FROM sessions
		WHERE status IN ('created', 'active', 'paused') AND last_activity_at <= ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, wrapStoreErr("query idle sessions", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle sessions rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		var sess domain.Session
		var status string
		var lastActivity, createdAt, updatedAt int64

		if err := rows.Scan(
			&sess.SessionID, &sess.ResumeToken, &status, &sess.Version,
			&lastActivity, &createdAt, &updatedAt,
		); err != nil {
			return nil, wrapStoreErr("scan idle session row", err)
		}

		sess.Status = domain.Status(status)
		sess.LastActivityAt = time.Unix(lastActivity, 0)
		sess.CreatedAt = time.Unix(createdAt, 0)
		sess.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, &sess)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("iterate idle sessions", err)
	}

	return sessions, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// wrapStoreErr marks a SQLite failure as transient. SQLITE_BUSY, "database
// is locked", and plain I/O failures are all retryable from the caller's
// point of view, so every one carries ErrStoreUnavailable; the adapter
// itself never retries.
func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
