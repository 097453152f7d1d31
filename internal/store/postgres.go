package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/NovaLine/SlotLine/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions, bookings and action logs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// GetSession returns the session for id, or (nil, nil) when absent.
func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}
	return sess, nil
}

// SaveSession stores or replaces a session row.
func (s *PostgresStore) SaveSession(sess models.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			booking_code = EXCLUDED.booking_code,
			state = EXCLUDED.state,
			slots = EXCLUDED.slots,
			pending_intent = EXCLUDED.pending_intent,
			pending_code = EXCLUDED.pending_code,
			greeted = EXCLUDED.greeted,
			updated_at = EXCLUDED.updated_at`, args...)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// DeleteSession removes a session row.
func (s *PostgresStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", id)
		return err
	}
	return nil
}

// FindSessionByBookingCode returns the session owning a code, or (nil, nil).
func (s *PostgresStore) FindSessionByBookingCode(code string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE booking_code = $1`, code)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindSessionByBookingCode failed", "error", err)
		return nil, err
	}
	return sess, nil
}

// SaveBooking stores the immutable booking record.
func (s *PostgresStore) SaveBooking(rec models.BookingRecord) error {
	slotJSON, err := json.Marshal(rec.Slot)
	if err != nil {
		return fmt.Errorf("failed to encode slot for booking %s: %w", rec.BookingCode, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO bookings (booking_code, topic, slot, email, phone, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (booking_code) DO NOTHING`,
		rec.BookingCode, rec.Topic, string(slotJSON), rec.Email, nilIfEmpty(rec.Phone), nilIfEmpty(rec.Notes), rec.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveBooking failed", "error", err, "bookingCode", rec.BookingCode)
		return fmt.Errorf("failed to save booking %s: %w", rec.BookingCode, err)
	}
	return nil
}

// GetBooking returns the booking record for a code, or (nil, nil).
func (s *PostgresStore) GetBooking(code string) (*models.BookingRecord, error) {
	var rec models.BookingRecord
	var slotJSON string
	var phone, notes sql.NullString
	err := s.db.QueryRow(
		`SELECT booking_code, topic, slot, email, phone, notes, created_at FROM bookings WHERE booking_code = $1`, code,
	).Scan(&rec.BookingCode, &rec.Topic, &slotJSON, &rec.Email, &phone, &notes, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetBooking failed", "error", err, "bookingCode", code)
		return nil, err
	}
	rec.Phone = phone.String
	rec.Notes = notes.String
	if err := json.Unmarshal([]byte(slotJSON), &rec.Slot); err != nil {
		return nil, fmt.Errorf("failed to decode slot for booking %s: %w", code, err)
	}
	return &rec, nil
}

// SaveActionLog persists the action-log set for a booking code. The set is
// written once; replays read the stored entries instead of overwriting.
func (s *PostgresStore) SaveActionLog(code string, entries []models.ActionRecord) error {
	encoded, err := encodeActionLog(entries)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO action_logs (booking_code, entries, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (booking_code) DO NOTHING`,
		code, encoded, time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore SaveActionLog failed", "error", err, "bookingCode", code)
		return fmt.Errorf("failed to save action log for %s: %w", code, err)
	}
	return nil
}

// GetActionLog returns the stored action-log set for a code, or nil.
func (s *PostgresStore) GetActionLog(code string) ([]models.ActionRecord, error) {
	var raw string
	err := s.db.QueryRow(`SELECT entries FROM action_logs WHERE booking_code = $1`, code).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetActionLog failed", "error", err, "bookingCode", code)
		return nil, err
	}
	return decodeActionLog(raw)
}

// PurgeIdleSessions implements the TTL sweep described on Store.
func (s *PostgresStore) PurgeIdleSessions(idleBefore, dispatchedBefore time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM sessions WHERE (state != $1 AND updated_at < $2) OR (state = $1 AND updated_at < $3)`,
		string(models.StateDispatched), idleBefore, dispatchedBefore,
	)
	if err != nil {
		slog.Error("PostgresStore PurgeIdleSessions failed", "error", err)
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
