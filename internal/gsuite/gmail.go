package gsuite

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/NovaLine/SlotLine/internal/dialog"
	"github.com/NovaLine/SlotLine/internal/models"
)

// GmailCapability drafts the booking confirmation email. Drafts are
// created, not sent; an advisor reviews and sends them.
type GmailCapability struct {
	svc *gmail.Service
}

// NewGmailCapability creates the Gmail capability using an authenticated
// HTTP client.
func NewGmailCapability(ctx context.Context, client *http.Client) (*GmailCapability, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &GmailCapability{svc: svc}, nil
}

// DraftConfirmation creates a confirmation draft addressed to the caller
// and returns the draft ID as the action reference.
func (g *GmailCapability) DraftConfirmation(ctx context.Context, rec models.BookingRecord) (string, error) {
	var msg strings.Builder
	fmt.Fprintf(&msg, "To: %s\r\n", rec.Email)
	fmt.Fprintf(&msg, "Subject: Your advisor appointment %s is confirmed\r\n", rec.BookingCode)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "Hi,\r\n\r\nYour appointment is confirmed.\r\n\r\n")
	fmt.Fprintf(&msg, "Booking code: %s\r\n", rec.BookingCode)
	fmt.Fprintf(&msg, "Topic: %s\r\n", rec.Topic)
	fmt.Fprintf(&msg, "Slot: %s to %s %s\r\n\r\n", rec.Slot.Start, rec.Slot.End, dialog.TimezoneLabel)
	msg.WriteString("Reply to this email if you need to make changes.\r\n")

	draft := &gmail.Draft{
		Message: &gmail.Message{
			Raw: base64.URLEncoding.EncodeToString([]byte(msg.String())),
		},
	}
	created, err := g.svc.Users.Drafts.Create("me", draft).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create confirmation draft: %w", err)
	}
	slog.Info("GmailCapability.DraftConfirmation: draft created",
		"bookingCode", rec.BookingCode, "draftID", created.Id)
	return created.Id, nil
}
