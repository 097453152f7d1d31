// Package dispatch fans a finalized booking out to the downstream
// capabilities: the bookings sheet, the advisor calendar hold, and the
// confirmation email draft.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NovaLine/SlotLine/internal/models"
	"github.com/NovaLine/SlotLine/internal/store"
)

// SheetAppender records the booking on the bookings sheet.
type SheetAppender interface {
	AppendBooking(ctx context.Context, rec models.BookingRecord) (string, error)
}

// CalendarHolder places a tentative hold on the advisor calendar.
type CalendarHolder interface {
	HoldSlot(ctx context.Context, rec models.BookingRecord) (string, error)
}

// EmailDrafter prepares the confirmation email draft.
type EmailDrafter interface {
	DraftConfirmation(ctx context.Context, rec models.BookingRecord) (string, error)
}

// Capabilities bundles the three downstream capabilities a dispatch invokes.
type Capabilities struct {
	Sheet    SheetAppender
	Calendar CalendarHolder
	Email    EmailDrafter
}

// DefaultDispatchTimeout bounds the time all three capabilities together
// may take before their contexts are cancelled.
const DefaultDispatchTimeout = 30 * time.Second

// Dispatcher runs the three capabilities for a booking exactly once and
// records the outcome per capability. A repeat dispatch for the same
// booking code replays the recorded outcomes without invoking anything.
type Dispatcher struct {
	store   store.Store
	caps    Capabilities
	timeout time.Duration
}

// Opts holds configuration options for the dispatcher.
type Opts struct {
	Timeout time.Duration
}

// Option defines a configuration option for the dispatcher.
type Option func(*Opts)

// WithTimeout overrides the per-dispatch timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// NewDispatcher creates a dispatcher over the given store and capabilities.
func NewDispatcher(st store.Store, caps Capabilities, opts ...Option) *Dispatcher {
	cfg := Opts{Timeout: DefaultDispatchTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{store: st, caps: caps, timeout: cfg.Timeout}
}

// DispatchOnce runs all three capabilities for the booking, or replays the
// stored outcomes if this booking code has dispatched before. All three
// capabilities always run; one failing does not short-circuit the others.
// The returned log always holds exactly three entries in the fixed order
// sheet_append, calendar_hold, email_draft.
func (d *Dispatcher) DispatchOnce(ctx context.Context, rec models.BookingRecord) ([]models.ActionRecord, error) {
	existing, err := d.store.GetActionLog(rec.BookingCode)
	if err != nil {
		return nil, fmt.Errorf("failed to check action log for %s: %w", rec.BookingCode, err)
	}
	if existing != nil {
		slog.Info("Dispatcher.DispatchOnce: replaying recorded dispatch", "bookingCode", rec.BookingCode)
		return existing, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	entries := make([]models.ActionRecord, 3)
	var wg sync.WaitGroup
	run := func(idx int, action models.ActionType, fn func(context.Context, models.BookingRecord) (string, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := fn(ctx, rec)
			if err != nil {
				slog.Error("Dispatcher.DispatchOnce: capability failed",
					"action", action, "bookingCode", rec.BookingCode, "error", err)
				entries[idx] = models.ActionRecord{Action: action, Status: models.ActionStatusFailed, Error: err.Error()}
				return
			}
			entries[idx] = models.ActionRecord{Action: action, Status: models.ActionStatusOK, Result: result}
		}()
	}
	run(0, models.ActionSheetAppend, d.caps.Sheet.AppendBooking)
	run(1, models.ActionCalendarHold, d.caps.Calendar.HoldSlot)
	run(2, models.ActionEmailDraft, d.caps.Email.DraftConfirmation)
	wg.Wait()

	if err := d.store.SaveActionLog(rec.BookingCode, entries); err != nil {
		return nil, fmt.Errorf("failed to record dispatch for %s: %w", rec.BookingCode, err)
	}
	slog.Info("Dispatcher.DispatchOnce: dispatch complete",
		"bookingCode", rec.BookingCode,
		"sheet", entries[0].Status, "calendar", entries[1].Status, "email", entries[2].Status)
	return entries, nil
}
