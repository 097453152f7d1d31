// Package channel connects the dialogue flow to WhatsApp through the
// Whatsmeow client. Each WhatsApp sender maps to one dialogue session, so
// a caller can book over chat exactly as they would over the voice API.
package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/NovaLine/SlotLine/internal/store"
)

const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database.
	DefaultSQLitePath = "/var/lib/slotline/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
	// sessionPrefix namespaces WhatsApp-originated session IDs.
	sessionPrefix = "wa:"
)

// TurnFunc processes one dialogue turn and returns the reply text.
type TurnFunc func(ctx context.Context, sessionID, text string) (string, error)

// Opts holds configuration options for the WhatsApp channel.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // use a numeric login code instead of a QR code
}

// Option defines a configuration option for the WhatsApp channel.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to the given path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode uses a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// WhatsAppChannel bridges incoming WhatsApp messages to the booking flow
// and sends the dialogue replies back.
type WhatsAppChannel struct {
	waClient *whatsmeow.Client
	turn     TurnFunc
}

// NewWhatsAppChannel creates and connects the WhatsApp channel, running
// the QR login flow if the device is not yet paired.
func NewWhatsAppChannel(turn TurnFunc, opts ...Option) (*WhatsAppChannel, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsAppChannel options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	dbDriver := "sqlite3"
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else if !strings.Contains(dbDSN, "foreign_keys") {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
			"The whatsmeow library strongly recommends enabling foreign keys for data integrity.",
			"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	if waClient.Store.ID == nil {
		if err := loginWithQR(waClient, cfg); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp channel connected successfully")
	return &WhatsAppChannel{waClient: waClient, turn: turn}, nil
}

// loginWithQR runs the first-time pairing flow, writing the QR code (or a
// numeric code) to the configured output.
func loginWithQR(waClient *whatsmeow.Client, cfg Opts) error {
	slog.Info("WhatsApp login required; starting QR code flow")
	qrChan, _ := waClient.GetQRChannel(context.Background())
	if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp during login", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			slog.Error("Failed to create QR file", "error", err)
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			if cfg.NumericCode {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
		} else {
			slog.Debug("WhatsApp login event", "event", evt.Event)
		}
	}
	return nil
}

// Run registers the message handler and blocks until the context is
// cancelled, then disconnects.
func (c *WhatsAppChannel) Run(ctx context.Context) {
	c.waClient.AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			c.handleMessage(ctx, msg)
		}
	})
	slog.Debug("WhatsAppChannel event handler registered")
	<-ctx.Done()
	c.waClient.Disconnect()
	slog.Debug("WhatsAppChannel stopped")
}

// handleMessage runs one incoming text message through the dialogue flow
// and replies in the same chat. Non-text messages are ignored.
func (c *WhatsAppChannel) handleMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppChannel ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	sessionID := sessionPrefix + evt.Info.Sender.User
	reply, err := c.turn(ctx, sessionID, text)
	if err != nil {
		slog.Error("WhatsAppChannel turn failed", "sessionID", sessionID, "error", err)
		return
	}
	if err := c.sendMessage(ctx, evt.Info.Sender.User, reply); err != nil {
		slog.Error("WhatsAppChannel reply failed", "sessionID", sessionID, "error", err)
	}
}

// sendMessage sends a text message to the given WhatsApp user.
func (c *WhatsAppChannel) sendMessage(ctx context.Context, to, body string) error {
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("WhatsAppChannel message sent", "to", to, "body_length", len(body))
	return nil
}
