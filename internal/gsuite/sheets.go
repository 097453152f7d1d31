package gsuite

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/NovaLine/SlotLine/internal/models"
)

// bookingsRange is the sheet tab and columns booking rows append into.
const bookingsRange = "Bookings!A:H"

// SheetsCapability appends finalized bookings to a Google Sheet.
type SheetsCapability struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewSheetsCapability creates the Sheets capability for the given
// spreadsheet using an authenticated HTTP client.
func NewSheetsCapability(ctx context.Context, client *http.Client, spreadsheetID string) (*SheetsCapability, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID not set")
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetsCapability{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// AppendBooking appends one booking row and returns the updated range as
// the action reference.
func (s *SheetsCapability) AppendBooking(ctx context.Context, rec models.BookingRecord) (string, error) {
	row := []interface{}{
		rec.BookingCode,
		rec.Topic,
		rec.Slot.SlotID,
		rec.Slot.Start,
		rec.Slot.End,
		rec.Email,
		rec.Phone,
		rec.Notes,
	}
	resp, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, bookingsRange, &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to append booking row: %w", err)
	}
	ref := resp.Updates.UpdatedRange
	slog.Info("SheetsCapability.AppendBooking: row appended", "bookingCode", rec.BookingCode, "range", ref)
	return ref, nil
}
