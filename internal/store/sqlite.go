package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/NovaLine/SlotLine/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions, bookings and action logs in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file
// path). The parent directory is created if missing and migrations are
// applied on open.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

const sessionColumns = `session_id, booking_code, state, slots, pending_intent, pending_code, greeted, created_at, updated_at`

// GetSession returns the session for id, or (nil, nil) when absent.
func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}
	return sess, nil
}

// SaveSession stores or replaces a session row.
func (s *SQLiteStore) SaveSession(sess models.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// DeleteSession removes a session row.
func (s *SQLiteStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "sessionID", id)
		return err
	}
	return nil
}

// FindSessionByBookingCode returns the session owning a code, or (nil, nil).
func (s *SQLiteStore) FindSessionByBookingCode(code string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE booking_code = ?`, code)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindSessionByBookingCode failed", "error", err)
		return nil, err
	}
	return sess, nil
}

// SaveBooking stores the immutable booking record.
func (s *SQLiteStore) SaveBooking(rec models.BookingRecord) error {
	slotJSON, err := json.Marshal(rec.Slot)
	if err != nil {
		return fmt.Errorf("failed to encode slot for booking %s: %w", rec.BookingCode, err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO bookings (booking_code, topic, slot, email, phone, notes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.BookingCode, rec.Topic, string(slotJSON), rec.Email, nilIfEmpty(rec.Phone), nilIfEmpty(rec.Notes), rec.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveBooking failed", "error", err, "bookingCode", rec.BookingCode)
		return fmt.Errorf("failed to save booking %s: %w", rec.BookingCode, err)
	}
	return nil
}

// GetBooking returns the booking record for a code, or (nil, nil).
func (s *SQLiteStore) GetBooking(code string) (*models.BookingRecord, error) {
	var rec models.BookingRecord
	var slotJSON string
	var phone, notes sql.NullString
	err := s.db.QueryRow(
		`SELECT booking_code, topic, slot, email, phone, notes, created_at FROM bookings WHERE booking_code = ?`, code,
	).Scan(&rec.BookingCode, &rec.Topic, &slotJSON, &rec.Email, &phone, &notes, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetBooking failed", "error", err, "bookingCode", code)
		return nil, err
	}
	rec.Phone = phone.String
	rec.Notes = notes.String
	if err := json.Unmarshal([]byte(slotJSON), &rec.Slot); err != nil {
		return nil, fmt.Errorf("failed to decode slot for booking %s: %w", code, err)
	}
	return &rec, nil
}

// SaveActionLog persists the action-log set for a booking code.
func (s *SQLiteStore) SaveActionLog(code string, entries []models.ActionRecord) error {
	encoded, err := encodeActionLog(entries)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO action_logs (booking_code, entries, created_at) VALUES (?, ?, ?)`,
		code, encoded, time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveActionLog failed", "error", err, "bookingCode", code)
		return fmt.Errorf("failed to save action log for %s: %w", code, err)
	}
	return nil
}

// GetActionLog returns the stored action-log set for a code, or nil.
func (s *SQLiteStore) GetActionLog(code string) ([]models.ActionRecord, error) {
	var raw string
	err := s.db.QueryRow(`SELECT entries FROM action_logs WHERE booking_code = ?`, code).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetActionLog failed", "error", err, "bookingCode", code)
		return nil, err
	}
	return decodeActionLog(raw)
}

// PurgeIdleSessions implements the TTL sweep described on Store.
func (s *SQLiteStore) PurgeIdleSessions(idleBefore, dispatchedBefore time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM sessions WHERE (state != ? AND updated_at < ?) OR (state = ? AND updated_at < ?)`,
		string(models.StateDispatched), idleBefore, string(models.StateDispatched), dispatchedBefore,
	)
	if err != nil {
		slog.Error("SQLiteStore PurgeIdleSessions failed", "error", err)
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
