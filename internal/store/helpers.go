package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/NovaLine/SlotLine/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns (booking_code must be NULL, not "",
// to keep the unique index meaningful).
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSession reads one sessions row, decoding the slots JSON column.
func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var bookingCode, slotsJSON, pendingIntent, pendingCode sql.NullString
	err := row.Scan(
		&sess.ID, &bookingCode, &sess.State, &slotsJSON,
		&pendingIntent, &pendingCode, &sess.Greeted,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.BookingCode = bookingCode.String
	sess.PendingIntent = models.Intent(pendingIntent.String)
	sess.PendingCode = pendingCode.String
	if slotsJSON.String != "" {
		if err := json.Unmarshal([]byte(slotsJSON.String), &sess.Slots); err != nil {
			return nil, fmt.Errorf("failed to decode slots for session %s: %w", sess.ID, err)
		}
	}
	return &sess, nil
}

// sessionArgs produces the insert/update arguments for a session row, in
// column order matching the migrations.
func sessionArgs(sess models.Session) ([]interface{}, error) {
	slotsJSON, err := json.Marshal(sess.Slots)
	if err != nil {
		return nil, fmt.Errorf("failed to encode slots for session %s: %w", sess.ID, err)
	}
	return []interface{}{
		sess.ID, nilIfEmpty(sess.BookingCode), string(sess.State), string(slotsJSON),
		nilIfEmpty(string(sess.PendingIntent)), nilIfEmpty(sess.PendingCode), sess.Greeted,
		sess.CreatedAt, sess.UpdatedAt,
	}, nil
}

// encodeActionLog serializes an action-log set for the entries column.
func encodeActionLog(entries []models.ActionRecord) (string, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode action log: %w", err)
	}
	return string(b), nil
}

// decodeActionLog deserializes the entries column.
func decodeActionLog(raw string) ([]models.ActionRecord, error) {
	var entries []models.ActionRecord
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode action log: %w", err)
	}
	return entries, nil
}
