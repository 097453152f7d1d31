// Package store provides storage backends for SlotLine sessions, booking
// records, and action logs.
//
// Sessions are indexed twice: by session ID and, once minted, by booking
// code. Lookups that find nothing return (nil, nil); callers translate
// that into their own not-found errors. All backends are safe for
// concurrent use; per-session turn serialization is layered on top by the
// booking service.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/NovaLine/SlotLine/internal/models"
)

// Store is the storage abstraction shared by the in-memory, SQLite and
// Postgres backends.
type Store interface {
	GetSession(id string) (*models.Session, error)
	SaveSession(s models.Session) error
	DeleteSession(id string) error
	FindSessionByBookingCode(code string) (*models.Session, error)

	SaveBooking(rec models.BookingRecord) error
	GetBooking(code string) (*models.BookingRecord, error)

	SaveActionLog(code string, entries []models.ActionRecord) error
	GetActionLog(code string) ([]models.ActionRecord, error)

	// PurgeIdleSessions deletes sessions idle since idleBefore that have
	// not dispatched, and dispatched sessions idle since dispatchedBefore.
	// Booking records and action logs are retained for idempotent replay.
	PurgeIdleSessions(idleBefore, dispatchedBefore time.Time) (int, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore keeps all state in process memory. It is the default
// backend for the demo and for tests; a restart loses all sessions.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	byCode   map[string]string // booking code -> session ID
	bookings map[string]models.BookingRecord
	actions  map[string][]models.ActionRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		byCode:   make(map[string]string),
		bookings: make(map[string]models.BookingRecord),
		actions:  make(map[string][]models.ActionRecord),
	}
}

// GetSession returns the session for id, or (nil, nil) when absent.
func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	out := sess
	return &out, nil
}

// SaveSession stores or replaces a session and maintains the booking-code index.
func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Drop stale code index entries for this session (cancel clears codes).
	for code, id := range s.byCode {
		if id == sess.ID && code != sess.BookingCode {
			delete(s.byCode, code)
		}
	}
	if sess.BookingCode != "" {
		s.byCode[sess.BookingCode] = sess.ID
	}
	s.sessions[sess.ID] = sess
	return nil
}

// DeleteSession removes a session and its code index entry.
func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSessionLocked(id)
	return nil
}

func (s *InMemoryStore) deleteSessionLocked(id string) {
	for code, sid := range s.byCode {
		if sid == id {
			delete(s.byCode, code)
		}
	}
	delete(s.sessions, id)
}

// FindSessionByBookingCode returns the session owning a booking code, or (nil, nil).
func (s *InMemoryStore) FindSessionByBookingCode(code string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, nil
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	out := sess
	return &out, nil
}

// SaveBooking stores the immutable booking record.
func (s *InMemoryStore) SaveBooking(rec models.BookingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[rec.BookingCode] = rec
	return nil
}

// GetBooking returns the booking record for a code, or (nil, nil).
func (s *InMemoryStore) GetBooking(code string) (*models.BookingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.bookings[code]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

// SaveActionLog persists the action-log set for a booking code verbatim.
func (s *InMemoryStore) SaveActionLog(code string, entries []models.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[code] = append([]models.ActionRecord(nil), entries...)
	return nil
}

// GetActionLog returns the stored action-log set for a code, or nil.
func (s *InMemoryStore) GetActionLog(code string) ([]models.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.actions[code]
	if !ok {
		return nil, nil
	}
	return append([]models.ActionRecord(nil), entries...), nil
}

// PurgeIdleSessions implements the TTL sweep described on Store.
func (s *InMemoryStore) PurgeIdleSessions(idleBefore, dispatchedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int
	for id, sess := range s.sessions {
		cutoff := idleBefore
		if sess.State.Terminal() {
			cutoff = dispatchedBefore
		}
		if sess.UpdatedAt.Before(cutoff) {
			s.deleteSessionLocked(id)
			purged++
		}
	}
	return purged, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
