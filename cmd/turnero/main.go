package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/turnero/turnero/internal/api"
	"github.com/turnero/turnero/internal/flow"
	"github.com/turnero/turnero/internal/genai"
	"github.com/turnero/turnero/internal/identity"
	"github.com/turnero/turnero/internal/messaging"
	"github.com/turnero/turnero/internal/routing"
	"github.com/turnero/turnero/internal/scheduling"
	"github.com/turnero/turnero/internal/store"
	"github.com/turnero/turnero/internal/sweeper"
	"github.com/turnero/turnero/internal/util"
	"github.com/turnero/turnero/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Turnero state data
	DefaultStateDir = "/var/lib/turnero"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "turnero.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("Turnero failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Turnero exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	WhatsAppDSN   string
	StateDir      string
	OpenAIKey     string
	APIAddr       string
	AdminToken    string
	CentralNumber string
	Transport     string
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	SweepInterval time.Duration
}

// Flags holds command line flag values
type Flags struct {
	config        Config
	qrOutput      *string
	numeric       *bool
	dbDSN         *string
	openaiKey     *string
	apiAddr       *string
	centralNumber *string
	transport     *string
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("TURNERO_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:      util.GetEnv("TURNERO_STATE_DIR", DefaultStateDir),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		CentralNumber: os.Getenv("CENTRAL_NUMBER"),
		Transport:     util.GetEnv("TRANSPORT", "whatsapp"),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:    os.Getenv("TWILIO_FROM_NUMBER"),
		SweepInterval: util.ParseDurationEnv("SWEEP_INTERVAL", sweeper.DefaultInterval),
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"TURNERO_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"ADMIN_TOKEN_SET", config.AdminToken != "",
		"CENTRAL_NUMBER_SET", config.CentralNumber != "",
		"TRANSPORT", config.Transport,
		"SWEEP_INTERVAL", config.SweepInterval)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		config:        config,
		qrOutput:      flag.String("qr-output", "", "path to write login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		centralNumber: flag.String("central-number", config.CentralNumber, "platform central WhatsApp number (overrides $CENTRAL_NUMBER)"),
		transport:     flag.String("transport", config.Transport, "message transport: whatsapp or twilio (overrides $TRANSPORT)"),
	}
	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"centralNumber_set", *flags.centralNumber != "",
		"transport", *flags.transport)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
		slog.Debug("State directory ready", "state_dir", stateDir)
	}
	return nil
}

// run wires every component and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, dedup, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	genaiClient, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
	if err != nil {
		return err
	}

	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	engine := scheduling.NewEngine(st)
	validator := scheduling.NewValidator(st, engine)

	registry := flow.NewRegistry(st, genaiClient)
	registry.Register(flow.NewBusinessOnboardingFlow(st))
	registry.Register(flow.NewStaffOnboardingFlow(st, msgService))
	registry.Register(flow.NewCustomerFlow(st, engine, validator))
	registry.Register(flow.NewManagementFlow(st, engine))

	resolver := identity.NewResolver(st, *flags.centralNumber)
	router := routing.NewRouter(st, dedup, resolver, registry, msgService)

	sw := sweeper.New(st, router.Locks(), flags.config.SweepInterval)
	go sw.Run(ctx)

	apiOpts := []api.Option{api.WithToken(flags.config.AdminToken)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if tw, ok := msgService.(*messaging.TwilioService); ok {
		apiOpts = append(apiOpts, api.WithWebhookHandler(tw.WebhookHandler))
	}
	server := api.NewServer(st, apiOpts...)
	server.Start()

	slog.Info("Turnero running", "transport", *flags.transport)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case msg, ok := <-msgService.Messages():
			if !ok {
				return nil
			}
			go func() {
				if err := router.HandleInbound(ctx, msg); err != nil {
					slog.Error("Inbound message handling failed", "error", err, "messageID", msg.MessageID)
				}
			}()
		}
	}
}

// buildStore selects the relational backend from the DSN.
func buildStore(dsn string) (store.Store, store.DedupRepo, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		pg, err := store.NewPostgresStore(store.WithDSN(dsn))
		if err != nil {
			return nil, nil, err
		}
		return pg, store.NewPostgresDedupRepo(pg), nil
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	sq, err := store.NewSQLiteStore(store.WithDSN(dsn))
	if err != nil {
		return nil, nil, err
	}
	return sq, store.NewSQLiteDedupRepo(sq), nil
}

// buildMessagingService creates the configured transport.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	if *flags.transport == "twilio" {
		return messaging.NewTwilioService(flags.config.TwilioSID, flags.config.TwilioToken, flags.config.TwilioFrom)
	}
	var waOpts []whatsapp.Option
	if flags.config.WhatsAppDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(flags.config.WhatsAppDSN))
	}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, err
	}
	return messaging.NewWhatsAppService(client), nil
}
