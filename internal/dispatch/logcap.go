package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/NovaLine/SlotLine/internal/models"
)

// LogCapabilities is the demo fallback for all three capabilities. Each
// invocation logs the full payload it would have sent and returns a
// synthetic reference, so the booking flow works end to end without
// Google credentials.
type LogCapabilities struct {
	seq atomic.Int64
}

// NewLogCapabilities returns a Capabilities bundle where every capability
// is log-only.
func NewLogCapabilities() Capabilities {
	lc := &LogCapabilities{}
	return Capabilities{Sheet: lc, Calendar: lc, Email: lc}
}

func (l *LogCapabilities) AppendBooking(_ context.Context, rec models.BookingRecord) (string, error) {
	ref := fmt.Sprintf("sheet-row-%d", l.seq.Add(1))
	slog.Info("LogCapabilities.AppendBooking: would append booking row",
		"ref", ref, "bookingCode", rec.BookingCode, "topic", rec.Topic,
		"slot", rec.Slot.SlotID, "start", rec.Slot.Start, "email", rec.Email)
	return ref, nil
}

func (l *LogCapabilities) HoldSlot(_ context.Context, rec models.BookingRecord) (string, error) {
	ref := fmt.Sprintf("hold-%d", l.seq.Add(1))
	slog.Info("LogCapabilities.HoldSlot: would place tentative calendar hold",
		"ref", ref, "bookingCode", rec.BookingCode,
		"slot", rec.Slot.SlotID, "start", rec.Slot.Start, "end", rec.Slot.End)
	return ref, nil
}

func (l *LogCapabilities) DraftConfirmation(_ context.Context, rec models.BookingRecord) (string, error) {
	ref := fmt.Sprintf("draft-%d", l.seq.Add(1))
	slog.Info("LogCapabilities.DraftConfirmation: would draft confirmation email",
		"ref", ref, "bookingCode", rec.BookingCode, "to", rec.Email,
		"topic", rec.Topic, "slot", rec.Slot.SlotID)
	return ref, nil
}
