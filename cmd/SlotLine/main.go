package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/NovaLine/SlotLine/internal/api"
	"github.com/NovaLine/SlotLine/internal/booking"
	"github.com/NovaLine/SlotLine/internal/channel"
	"github.com/NovaLine/SlotLine/internal/dispatch"
	"github.com/NovaLine/SlotLine/internal/gsuite"
	"github.com/NovaLine/SlotLine/internal/interpret"
	"github.com/NovaLine/SlotLine/internal/lockfile"
	"github.com/NovaLine/SlotLine/internal/notify"
	"github.com/NovaLine/SlotLine/internal/store"
	"github.com/NovaLine/SlotLine/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SlotLine state data
	DefaultStateDir = "/var/lib/slotline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "slotline.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	OpenAIKey      string
	APIAddr        string
	SecureLinkBase string
	SpreadsheetID  string
	CalendarID     string
	WhatsAppDSN    string
	WhatsAppOn     bool
	SMSOn          bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
	secure    *string
	whatsapp  *bool
}

func main() {
	initializeLogger()
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if usesStateDir(flags) {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			slog.Error("Failed to acquire state directory lock", "error", err)
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	interp := buildInterpreter(flags)
	caps := buildCapabilities(ctx, config)
	dispatcher := dispatch.NewDispatcher(st, caps)

	svcOpts := []booking.Option{
		booking.WithSessionTTL(util.ParseDurationEnv("SESSION_TTL", booking.DefaultSessionTTL)),
		booking.WithDispatchedTTL(util.ParseDurationEnv("DISPATCHED_TTL", booking.DefaultDispatchedTTL)),
	}
	if *flags.secure != "" {
		svcOpts = append(svcOpts, booking.WithSecureLinkBase(*flags.secure))
	}
	if config.SMSOn {
		notifier, err := notify.NewTwilioNotifier()
		if err != nil {
			slog.Warn("SMS notifications disabled", "error", err)
		} else {
			svcOpts = append(svcOpts, booking.WithNotifier(notifier))
		}
	}
	svc := booking.NewService(st, interp, dispatcher, svcOpts...)
	go svc.RunJanitor(ctx)

	if *flags.whatsapp {
		startWhatsApp(ctx, svc, config, flags)
	}

	apiOpts := []api.Option{}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.openaiKey != "" {
		transcriber, err := interpret.NewWhisperTranscriber(interpret.WithAPIKey(*flags.openaiKey))
		if err != nil {
			slog.Warn("Voice turns disabled", "error", err)
		} else {
			apiOpts = append(apiOpts, api.WithTranscriber(transcriber))
		}
	}

	slog.Info("Bootstrapping SlotLine with configured modules")
	if err := api.NewServer(svc, apiOpts...).Run(ctx); err != nil {
		slog.Error("SlotLine failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SlotLine exited successfully")
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("SLOTLINE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("SLOTLINE_STATE_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		SecureLinkBase: os.Getenv("SECURE_LINK_BASE"),
		SpreadsheetID:  os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"),
		CalendarID:     os.Getenv("GOOGLE_CALENDAR_ID"),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		WhatsAppOn:     util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		SMSOn:          os.Getenv("TWILIO_ACCOUNT_SID") != "",
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SLOTLINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SLOTLINE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SECURE_LINK_BASE", config.SecureLinkBase,
		"SPREADSHEET_ID_SET", config.SpreadsheetID != "",
		"WHATSAPP_ENABLED", config.WhatsAppOn,
		"SMS_ENABLED", config.SMSOn)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:  flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:   flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for SlotLine data (overrides $SLOTLINE_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		secure:    flag.String("secure-link-base", config.SecureLinkBase, "base URL of the secure details page (overrides $SECURE_LINK_BASE)"),
		whatsapp:  flag.Bool("whatsapp", config.WhatsAppOn, "enable the WhatsApp channel (overrides $WHATSAPP_ENABLED)"),
	}
	flag.Parse()

	// Track the state directory if it was overridden and the DSN still
	// points at the default SQLite file.
	if *flags.stateDir != config.StateDir && *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"whatsapp", *flags.whatsapp)

	return flags
}

// usesStateDir reports whether this run keeps SQLite files in the state
// directory and therefore needs the single-instance lock.
func usesStateDir(flags Flags) bool {
	if *flags.whatsapp {
		return true
	}
	dsn := *flags.dbDSN
	return dsn != "memory" && store.DetectDSNType(dsn) != "postgres"
}

// buildStore selects and initializes the session store backend.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "memory" {
		slog.Info("Using in-memory store; sessions are lost on restart")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildInterpreter selects the OpenAI interpreter when a key is available,
// falling back to the offline keyword parser.
func buildInterpreter(flags Flags) interpret.Interpreter {
	if *flags.openaiKey == "" {
		slog.Info("No OpenAI API key; using keyword interpreter only")
		return interpret.KeywordInterpreter{}
	}
	interp, err := interpret.NewOpenAIInterpreter(interpret.WithAPIKey(*flags.openaiKey))
	if err != nil {
		slog.Warn("Failed to initialize OpenAI interpreter, using keyword fallback", "error", err)
		return interpret.KeywordInterpreter{}
	}
	return interp
}

// buildCapabilities wires the Google capabilities when credentials and a
// spreadsheet are configured, and the log-only capabilities otherwise.
func buildCapabilities(ctx context.Context, config Config) dispatch.Capabilities {
	if config.SpreadsheetID == "" {
		slog.Info("Google capabilities not configured; dispatch will log payloads only")
		return dispatch.NewLogCapabilities()
	}
	client, err := gsuite.NewHTTPClient(ctx)
	if err != nil {
		slog.Warn("Google auth unavailable, dispatch will log payloads only", "error", err)
		return dispatch.NewLogCapabilities()
	}
	sheet, err := gsuite.NewSheetsCapability(ctx, client, config.SpreadsheetID)
	if err != nil {
		slog.Warn("Sheets capability unavailable, dispatch will log payloads only", "error", err)
		return dispatch.NewLogCapabilities()
	}
	calendar, err := gsuite.NewCalendarCapability(ctx, client, config.CalendarID)
	if err != nil {
		slog.Warn("Calendar capability unavailable, dispatch will log payloads only", "error", err)
		return dispatch.NewLogCapabilities()
	}
	email, err := gsuite.NewGmailCapability(ctx, client)
	if err != nil {
		slog.Warn("Gmail capability unavailable, dispatch will log payloads only", "error", err)
		return dispatch.NewLogCapabilities()
	}
	slog.Info("Google capabilities configured", "spreadsheet_set", true)
	return dispatch.Capabilities{Sheet: sheet, Calendar: calendar, Email: email}
}

// startWhatsApp connects the WhatsApp channel and runs it in the background.
func startWhatsApp(ctx context.Context, svc *booking.Service, config Config, flags Flags) {
	turn := func(ctx context.Context, sessionID, text string) (string, error) {
		reply, err := svc.Turn(ctx, sessionID, text)
		if err != nil {
			return "", err
		}
		return reply.Reply, nil
	}
	chOpts := []channel.Option{channel.WithDBDSN(config.WhatsAppDSN)}
	if *flags.qrOutput != "" {
		chOpts = append(chOpts, channel.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		chOpts = append(chOpts, channel.WithNumericCode())
	}
	wa, err := channel.NewWhatsAppChannel(turn, chOpts...)
	if err != nil {
		slog.Warn("WhatsApp channel unavailable", "error", err)
		return
	}
	go wa.Run(ctx)
}
