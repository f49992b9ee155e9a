// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides attendant/visitor persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Table names used as change-feed keys.
const (
	TableRooms      = "rooms"
	TableMessages   = "messages"
	TableAttendants = "attendant_profiles"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db       *sql.DB
	notifier ChangeNotifier
	logger   *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Each pooled connection would otherwise open its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Serialize writers instead of failing fast on lock contention
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// SetNotifier installs the change notifier invoked after committed mutations.
// Must be called before the store is shared between goroutines.
func (s *SQLiteStore) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

// notify publishes a table-keyed invalidation if a notifier is installed.
func (s *SQLiteStore) notify(table string) {
	if s.notifier != nil {
		s.notifier.Notify(table)
	}
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS attendant_profiles (
			id                   TEXT PRIMARY KEY,
			user_id              TEXT NOT NULL,
			manager_id           TEXT NOT NULL,
			status               TEXT NOT NULL DEFAULT 'offline',
			max_conversations    INTEGER,
			active_conversations INTEGER NOT NULL DEFAULT 0,
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL,

			CHECK (status IN ('online', 'offline', 'away')),
			CHECK (active_conversations >= 0),
			CHECK (max_conversations IS NULL OR active_conversations <= max_conversations)
		);

		CREATE INDEX IF NOT EXISTS idx_attendants_status ON attendant_profiles(status);

		CREATE TABLE IF NOT EXISTS visitors (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			token        TEXT NOT NULL UNIQUE,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_visitors_token ON visitors(token);

		CREATE TABLE IF NOT EXISTS rooms (
			id           TEXT PRIMARY KEY,
			visitor_id   TEXT NOT NULL REFERENCES visitors(id),
			attendant_id TEXT REFERENCES attendant_profiles(id),
			status       TEXT NOT NULL,
			resolution   TEXT NOT NULL DEFAULT 'none',
			closed_at    TEXT,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,

			CHECK (status IN ('open', 'closed')),
			CHECK (resolution IN ('none', 'pending', 'resolved'))
		);

		CREATE INDEX IF NOT EXISTS idx_rooms_attendant_status
			ON rooms(attendant_id, status);
		CREATE INDEX IF NOT EXISTS idx_rooms_pending
			ON rooms(attendant_id, resolution, closed_at);
		CREATE INDEX IF NOT EXISTS idx_rooms_visitor ON rooms(visitor_id);

		CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			room_id     TEXT NOT NULL REFERENCES rooms(id),
			sender_type TEXT NOT NULL,
			sender_id   TEXT NOT NULL,
			content     TEXT NOT NULL,
			is_internal INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,

			CHECK (sender_type IN ('visitor', 'attendant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_room_created
			ON messages(room_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateAttendant inserts a new attendant profile.
func (s *SQLiteStore) CreateAttendant(ctx context.Context, att *Attendant) error {
	query := `
		INSERT INTO attendant_profiles
			(id, user_id, manager_id, status, max_conversations, active_conversations, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		att.ID,
		att.UserID,
		att.ManagerID,
		string(att.Status),
		att.MaxConversations,
		att.ActiveConversations,
		att.CreatedAt.UTC().Format(time.RFC3339),
		att.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting attendant: %w", err)
	}

	s.logger.Debug("created attendant", "id", att.ID, "status", att.Status)
	s.notify(TableAttendants)
	return nil
}

// GetAttendant retrieves an attendant by ID.
// Returns ErrNotFound if the attendant doesn't exist.
func (s *SQLiteStore) GetAttendant(ctx context.Context, id string) (*Attendant, error) {
	query := `
		SELECT id, user_id, manager_id, status, max_conversations, active_conversations, created_at, updated_at
		FROM attendant_profiles
		WHERE id = ?
	`
	return s.scanAttendant(s.db.QueryRowContext(ctx, query, id))
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanAttendant(row rowScanner) (*Attendant, error) {
	var att Attendant
	var status string
	var maxConv sql.NullInt64
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&att.ID,
		&att.UserID,
		&att.ManagerID,
		&status,
		&maxConv,
		&att.ActiveConversations,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning attendant: %w", err)
	}

	att.Status = AttendantStatus(status)
	if maxConv.Valid {
		m := int(maxConv.Int64)
		att.MaxConversations = &m
	}

	att.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	att.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &att, nil
}

// ListAttendants retrieves all attendant profiles ordered by ID for a stable
// presentation order.
func (s *SQLiteStore) ListAttendants(ctx context.Context) ([]*Attendant, error) {
	query := `
		SELECT id, user_id, manager_id, status, max_conversations, active_conversations, created_at, updated_at
		FROM attendant_profiles
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying attendants: %w", err)
	}
	defer rows.Close()

	var attendants []*Attendant
	for rows.Next() {
		att, err := s.scanAttendant(rows)
		if err != nil {
			return nil, err
		}
		attendants = append(attendants, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendant rows: %w", err)
	}

	return attendants, nil
}

// SetAttendantStatus updates an attendant's presence status. It is a direct
// write: in-flight conversations are not reassigned.
// Returns ErrNotFound if the attendant doesn't exist.
func (s *SQLiteStore) SetAttendantStatus(ctx context.Context, id string, status AttendantStatus) error {
	query := `
		UPDATE attendant_profiles
		SET status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(status),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating attendant status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated attendant status", "id", id, "status", status)
	s.notify(TableAttendants)
	return nil
}

// CreateVisitor inserts a new visitor.
// Returns ErrDuplicateVisitor if the correlation token is already registered.
func (s *SQLiteStore) CreateVisitor(ctx context.Context, v *Visitor) error {
	query := `
		INSERT INTO visitors (id, display_name, token, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		v.ID,
		v.DisplayName,
		v.Token,
		v.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateVisitor
		}
		return fmt.Errorf("inserting visitor: %w", err)
	}

	s.logger.Debug("created visitor", "id", v.ID)
	return nil
}

// GetVisitor retrieves a visitor by ID.
func (s *SQLiteStore) GetVisitor(ctx context.Context, id string) (*Visitor, error) {
	query := `
		SELECT id, display_name, token, created_at
		FROM visitors
		WHERE id = ?
	`
	return s.scanVisitor(s.db.QueryRowContext(ctx, query, id))
}

// GetVisitorByToken retrieves a visitor by its opaque widget token.
func (s *SQLiteStore) GetVisitorByToken(ctx context.Context, token string) (*Visitor, error) {
	query := `
		SELECT id, display_name, token, created_at
		FROM visitors
		WHERE token = ?
	`
	return s.scanVisitor(s.db.QueryRowContext(ctx, query, token))
}

func (s *SQLiteStore) scanVisitor(row rowScanner) (*Visitor, error) {
	var v Visitor
	var createdAtStr string

	err := row.Scan(&v.ID, &v.DisplayName, &v.Token, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning visitor: %w", err)
	}

	v.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &v, nil
}
