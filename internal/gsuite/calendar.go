package gsuite

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/NovaLine/SlotLine/internal/models"
)

const (
	slotTimeLayout    = "2006-01-02 03:04 PM"
	slotTimeZone      = "Asia/Kolkata"
	defaultSlotSpan   = 30 * time.Minute
	defaultCalendarID = "primary"
)

// CalendarCapability places tentative holds on the advisor calendar.
type CalendarCapability struct {
	svc        *calendar.Service
	calendarID string
}

// NewCalendarCapability creates the Calendar capability using an
// authenticated HTTP client. An empty calendarID targets the primary
// calendar.
func NewCalendarCapability(ctx context.Context, client *http.Client, calendarID string) (*CalendarCapability, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = defaultCalendarID
	}
	return &CalendarCapability{svc: svc, calendarID: calendarID}, nil
}

// HoldSlot inserts a tentative event covering the booked slot and returns
// the event ID as the action reference.
func (c *CalendarCapability) HoldSlot(ctx context.Context, rec models.BookingRecord) (string, error) {
	start, end, err := slotTimes(rec.Slot)
	if err != nil {
		return "", err
	}
	event := &calendar.Event{
		Summary:     fmt.Sprintf("Advisor session: %s (%s)", rec.Topic, rec.BookingCode),
		Description: fmt.Sprintf("Booking %s for %s. Contact: %s", rec.BookingCode, rec.Topic, rec.Email),
		Status:      "tentative",
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: slotTimeZone},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: slotTimeZone},
	}
	created, err := c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert calendar hold: %w", err)
	}
	slog.Info("CalendarCapability.HoldSlot: tentative hold placed",
		"bookingCode", rec.BookingCode, "eventID", created.Id, "start", start)
	return created.Id, nil
}

// slotTimes resolves a catalog slot into concrete start and end instants.
// Slot end times carry only the clock part; the date comes from the start.
func slotTimes(slot models.SlotOption) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(slotTimeZone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to load timezone: %w", err)
	}
	start, err := time.ParseInLocation(slotTimeLayout, slot.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to parse slot start %q: %w", slot.Start, err)
	}
	end, err := time.ParseInLocation(slotTimeLayout, start.Format("2006-01-02")+" "+slot.End, loc)
	if err != nil {
		return start, start.Add(defaultSlotSpan), nil
	}
	return start, end, nil
}
