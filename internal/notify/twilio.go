// Package notify sends the booking confirmation SMS once contact details
// arrive and the dispatch completes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/NovaLine/SlotLine/internal/dialog"
	"github.com/NovaLine/SlotLine/internal/models"
)

// Notifier delivers out-of-band booking notifications. Delivery is best
// effort; a failed notification never fails the booking.
type Notifier interface {
	BookingConfirmed(ctx context.Context, rec models.BookingRecord) error
}

// Opts holds configuration options for the Twilio SMS notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio SMS notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// TwilioNotifier sends confirmation SMS through the Twilio REST API.
type TwilioNotifier struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewTwilioNotifier creates the SMS notifier. Options fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER
// environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioNotifier{client: client, fromNumber: cfg.FromNumber}, nil
}

// BookingConfirmed texts the caller their booking code and slot. Skipped
// when the booking carries no phone number.
func (n *TwilioNotifier) BookingConfirmed(ctx context.Context, rec models.BookingRecord) error {
	if rec.Phone == "" {
		slog.Debug("TwilioNotifier.BookingConfirmed: no phone on booking, skipping", "bookingCode", rec.BookingCode)
		return nil
	}
	body := fmt.Sprintf("Your advisor appointment is confirmed. Code %s, %s, %s to %s %s.",
		rec.BookingCode, rec.Topic, rec.Slot.Start, rec.Slot.End, dialog.TimezoneLabel)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(rec.Phone)
	params.SetFrom(n.fromNumber)
	params.SetBody(body)

	if _, err := n.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioNotifier.BookingConfirmed failed", "bookingCode", rec.BookingCode, "error", err)
		return fmt.Errorf("failed to send confirmation SMS for %s: %w", rec.BookingCode, err)
	}
	slog.Debug("TwilioNotifier.BookingConfirmed: SMS sent", "bookingCode", rec.BookingCode)
	return nil
}

// MockNotifier records notifications for tests. Safe for concurrent use
// since the service notifies asynchronously.
type MockNotifier struct {
	mu        sync.Mutex
	confirmed []models.BookingRecord
	Err       error
}

// NewMockNotifier creates an empty mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) BookingConfirmed(_ context.Context, rec models.BookingRecord) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed = append(m.confirmed, rec)
	return nil
}

// Confirmed returns a snapshot of the recorded notifications.
func (m *MockNotifier) Confirmed() []models.BookingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.BookingRecord(nil), m.confirmed...)
}
