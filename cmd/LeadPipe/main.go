package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/api"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/BTreeMap/LeadPipe/internal/lockfile"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/prompts"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/session"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LeadPipe/internal/util"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadPipe state data
	DefaultStateDir = "/var/lib/leadpipe"
	// DefaultAppDBFileName is the default SQLite database for sessions and leads
	DefaultAppDBFileName = "leadpipe.db"
	// DefaultWhatsAppDBFileName is the default SQLite database for the whatsmeow device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// NoDatabase selects the in-memory store
	NoDatabase = "none"
)

// Messaging providers.
const (
	ProviderUltraMsg = "ultramsg"
	ProviderTwilio   = "twilio"
	ProviderWhatsApp = "whatsapp"
	ProviderLog      = "log"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(2)
	}
	config = flags.apply(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		var lockErr *lockfile.LockError
		if errors.As(err, &lockErr) {
			fmt.Fprintln(os.Stderr, lockErr.Error())
		}
		slog.Error("LeadPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LeadPipe exited successfully")
}

// Config holds the resolved configuration.
type Config struct {
	StateDir        string
	AppDBDSN        string
	WhatsAppDBDSN   string
	Provider        string
	UltraMsgID      string
	UltraMsgToken   string
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string
	LLMKey          string
	LLMBaseURL      string
	LLMModel        string
	LLMFallbacks    []string
	LLMMaxAttempts  int
	LLMTimeout      time.Duration
	AdminPhone      string
	APIAddr         string
	HistoryLimit    int
	MinLoanAmount   int64
	TurnTimeout     time.Duration
	DedupRetention  time.Duration
	SessionIdle     time.Duration
	QRPath          string
	NumericCode     bool
	ShutdownTimeout time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	waDSN       *string
	provider    *string
	apiAddr     *string
	adminPhone  *string
	llmModel    *string
	qrOutput    *string
	numericCode *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		StateDir:        util.StringEnv("LEADPIPE_STATE_DIR", DefaultStateDir),
		AppDBDSN:        util.FirstEnv("DATABASE_DSN", "DATABASE_URL"),
		WhatsAppDBDSN:   util.StringEnv("WHATSAPP_DB_DSN", ""),
		Provider:        strings.ToLower(util.StringEnv("MESSAGING_PROVIDER", "")),
		UltraMsgID:      util.StringEnv("ULTRAMSG_INSTANCE_ID", ""),
		UltraMsgToken:   util.StringEnv("ULTRAMSG_TOKEN", ""),
		TwilioSID:       util.StringEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioToken:     util.StringEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:      util.StringEnv("TWILIO_FROM_NUMBER", ""),
		LLMKey:          util.FirstEnv("GROQ_API_KEY", "LLM_API_KEY"),
		LLMBaseURL:      util.StringEnv("LLM_BASE_URL", genai.DefaultBaseURL),
		LLMModel:        util.StringEnv("LLM_MODEL", genai.DefaultModel),
		LLMFallbacks:    util.ParseListEnv("LLM_FALLBACK_MODELS"),
		LLMMaxAttempts:  int(util.ParseIntEnv("LLM_MAX_ATTEMPTS", int64(genai.DefaultRetryConfig().MaxAttempts))),
		LLMTimeout:      util.ParseDurationEnv("LLM_TIMEOUT", genai.DefaultRetryConfig().AttemptTimeout),
		AdminPhone:      util.StringEnv("ADMIN_PHONE", ""),
		APIAddr:         util.StringEnv("API_ADDR", api.DefaultAddr),
		HistoryLimit:    int(util.ParseIntEnv("HISTORY_LIMIT", models.DefaultHistoryLimit)),
		MinLoanAmount:   util.ParseIntEnv("MIN_LOAN_AMOUNT", prompts.DefaultMinLoanAmount),
		TurnTimeout:     util.ParseDurationEnv("TURN_TIMEOUT", messaging.DefaultTurnTimeout),
		DedupRetention:  util.ParseDurationEnv("DEDUP_RETENTION", scheduler.DefaultDedupRetention),
		SessionIdle:     util.ParseDurationEnv("SESSION_IDLE_EVICT", scheduler.DefaultSessionIdle),
		ShutdownTimeout: api.DefaultShutdownTimeout,
	}
	config.resolveDSNs()

	slog.Debug("environment variables loaded",
		"LEADPIPE_STATE_DIR", config.StateDir,
		"DATABASE_DSN", redactDSN(config.AppDBDSN),
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"MESSAGING_PROVIDER", config.Provider,
		"ULTRAMSG_SET", config.UltraMsgID != "" && config.UltraMsgToken != "",
		"TWILIO_SET", config.TwilioSID != "" && config.TwilioToken != "",
		"LLM_API_KEY_SET", config.LLMKey != "",
		"LLM_MODEL", config.LLMModel,
		"ADMIN_PHONE_SET", config.AdminPhone != "",
		"API_ADDR", config.APIAddr,
		"MIN_LOAN_AMOUNT", config.MinLoanAmount)

	return config
}

// resolveDSNs fills the database defaults from the state directory.
func (c *Config) resolveDSNs() {
	if c.AppDBDSN == "" {
		c.AppDBDSN = filepath.Join(c.StateDir, DefaultAppDBFileName)
		slog.Debug("No DATABASE_DSN provided, defaulting to SQLite in state directory", "sqlite_path", c.AppDBDSN)
	}
	if c.WhatsAppDBDSN == "" {
		c.WhatsAppDBDSN = "file:" + filepath.Join(c.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		stateDir:    fs.String("state-dir", config.StateDir, "state directory for LeadPipe data (overrides $LEADPIPE_STATE_DIR)"),
		dbDSN:       fs.String("db-dsn", "", "session and lead database DSN, or \"none\" for in-memory (overrides $DATABASE_DSN)"),
		waDSN:       fs.String("whatsapp-db-dsn", "", "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)"),
		provider:    fs.String("provider", config.Provider, "messaging provider: ultramsg, twilio, whatsapp or log (overrides $MESSAGING_PROVIDER)"),
		apiAddr:     fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		adminPhone:  fs.String("admin-phone", config.AdminPhone, "phone number that receives new lead summaries (overrides $ADMIN_PHONE)"),
		llmModel:    fs.String("llm-model", config.LLMModel, "primary model name (overrides $LLM_MODEL)"),
		qrOutput:    fs.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numericCode: fs.Bool("numeric-code", false, "print the raw WhatsApp login code instead of a QR code"),
	}
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"provider", *flags.provider,
		"apiAddr", *flags.apiAddr,
		"llmModel", *flags.llmModel)
	return flags, nil
}

// apply overlays flag values on config. A changed state directory moves the database
// defaults that were derived from it.
func (f Flags) apply(config Config) Config {
	if *f.stateDir != config.StateDir {
		oldApp := filepath.Join(config.StateDir, DefaultAppDBFileName)
		oldWA := "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		config.StateDir = *f.stateDir
		if config.AppDBDSN == oldApp {
			config.AppDBDSN = ""
		}
		if config.WhatsAppDBDSN == oldWA {
			config.WhatsAppDBDSN = ""
		}
		config.resolveDSNs()
		slog.Debug("Updated database defaults based on state directory", "state_dir", config.StateDir)
	}
	if *f.dbDSN != "" {
		config.AppDBDSN = *f.dbDSN
	}
	if *f.waDSN != "" {
		config.WhatsAppDBDSN = *f.waDSN
	}
	config.Provider = strings.ToLower(strings.TrimSpace(*f.provider))
	config.APIAddr = *f.apiAddr
	config.AdminPhone = *f.adminPhone
	config.LLMModel = *f.llmModel
	config.QRPath = *f.qrOutput
	config.NumericCode = *f.numericCode
	return config
}

// selectProvider returns the configured provider, or picks one from the credentials present.
func selectProvider(config Config) string {
	switch config.Provider {
	case ProviderUltraMsg, ProviderTwilio, ProviderWhatsApp, ProviderLog:
		return config.Provider
	case "":
	default:
		slog.Warn("Unknown MESSAGING_PROVIDER, auto-detecting", "provider", config.Provider)
	}
	switch {
	case config.UltraMsgID != "" && config.UltraMsgToken != "":
		return ProviderUltraMsg
	case config.TwilioSID != "" && config.TwilioToken != "" && config.TwilioFrom != "":
		return ProviderTwilio
	default:
		return ProviderLog
	}
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(config Config) []store.Option {
	dsn := config.AppDBDSN
	if dsn == "" || strings.EqualFold(dsn, NoDatabase) {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// openStore opens the durable store. An unreachable store degrades to a cache-only run: it
// returns nil, and sessions, leads and dedup are kept in memory or skipped.
func openStore(config Config) store.Store {
	st, err := store.Open(buildStoreOptions(config)...)
	if err != nil {
		slog.Warn("Durable store unavailable, continuing cache-only: leads will not be saved",
			"dsn", redactDSN(config.AppDBDSN), "error", err)
		return nil
	}
	return st
}

// buildGenAIOptions constructs model gateway options
func buildGenAIOptions(config Config) []genai.Option {
	retry := genai.DefaultRetryConfig()
	if config.LLMMaxAttempts > 0 {
		retry.MaxAttempts = config.LLMMaxAttempts
	}
	if config.LLMTimeout > 0 {
		retry.AttemptTimeout = config.LLMTimeout
	}
	opts := []genai.Option{
		genai.WithBaseURL(config.LLMBaseURL),
		genai.WithModel(config.LLMModel),
		genai.WithRetryConfig(retry),
	}
	if config.LLMKey != "" {
		opts = append(opts, genai.WithAPIKey(config.LLMKey))
	}
	if len(config.LLMFallbacks) > 0 {
		opts = append(opts, genai.WithFallbackModels(config.LLMFallbacks...))
	}
	return opts
}

// buildWhatsAppOptions constructs whatsmeow client options
func buildWhatsAppOptions(config Config) []whatsapp.Option {
	opts := []whatsapp.Option{whatsapp.WithDBDSN(config.WhatsAppDBDSN)}
	if config.QRPath != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(config.QRPath))
	}
	if config.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	return opts
}

// buildRules applies configured overrides to the production rules.
func buildRules(config Config) prompts.BusinessRules {
	rules := prompts.DefaultRules()
	if config.MinLoanAmount > 0 {
		rules.MinLoanAmount = config.MinLoanAmount
	}
	return rules
}

// transport is the messaging service plus its inbound webhook mounts and teardown.
type transport struct {
	service  messaging.Service
	webhooks map[string]http.Handler
	close    func()
}

// buildTransport creates the messaging service for provider. Missing or broken credentials
// degrade to the logging transport rather than aborting startup.
func buildTransport(provider string, config Config, newWhatsApp func(...whatsapp.Option) (*whatsapp.Client, error)) transport {
	switch provider {
	case ProviderUltraMsg:
		svc, err := messaging.NewUltraMsgService(
			messaging.WithInstanceID(config.UltraMsgID),
			messaging.WithToken(config.UltraMsgToken),
		)
		if err == nil {
			slog.Info("Messaging provider configured", "provider", ProviderUltraMsg)
			return transport{service: svc, webhooks: map[string]http.Handler{"/webhook": svc.WebhookHandler()}}
		}
		slog.Warn("UltraMsg unavailable, falling back to log transport", "error", err)
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(config.TwilioSID),
			twiliowhatsapp.WithAuthToken(config.TwilioToken),
			twiliowhatsapp.WithFromWhats(config.TwilioFrom),
		)
		if err == nil {
			svc := messaging.NewTwilioService(client)
			slog.Info("Messaging provider configured", "provider", ProviderTwilio)
			return transport{service: svc, webhooks: map[string]http.Handler{"/webhook/twilio": http.HandlerFunc(svc.TwilioWebhookHandler)}}
		}
		slog.Warn("Twilio unavailable, falling back to log transport", "error", err)
	case ProviderWhatsApp:
		client, err := newWhatsApp(buildWhatsAppOptions(config)...)
		if err == nil {
			slog.Info("Messaging provider configured", "provider", ProviderWhatsApp)
			return transport{service: messaging.NewWhatsAppService(client), close: client.Disconnect}
		}
		slog.Warn("WhatsApp unavailable, falling back to log transport", "error", err)
	}
	slog.Warn("No messaging credentials in use: outbound messages are logged, not delivered", "provider", ProviderLog)
	svc := messaging.NewLogService()
	return transport{service: svc, webhooks: map[string]http.Handler{"/webhook": svc.WebhookHandler()}}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, config Config) error {
	lock, err := lockfile.AcquireLock(config.StateDir, config.APIAddr)
	if err != nil {
		return err
	}
	defer lock.Release()

	st := openStore(config)
	if st != nil {
		defer func() {
			if err := st.Close(); err != nil {
				slog.Warn("Failed to close store", "error", err)
			}
		}()
	}

	sessions := session.NewHybridStore(st)

	client, err := genai.NewClient(buildGenAIOptions(config)...)
	switch {
	case errors.Is(err, genai.ErrUnavailable):
		slog.Warn("No LLM API key configured: every turn will answer with the unavailable message")
	case err != nil:
		return fmt.Errorf("failed to create model client: %w", err)
	default:
		slog.Info("Model gateway configured", "client", client.String())
	}
	rules := buildRules(config)
	gateway := genai.NewGateway(client, rules)

	tr := buildTransport(selectProvider(config), config, whatsapp.NewClient)
	if tr.close != nil {
		defer tr.close()
	}

	finalizer := flow.NewLeadFinalizer(st, tr.service, flow.WithAdminPhone(config.AdminPhone))
	engine := flow.NewEngine(gateway, sessions, tr.service, finalizer,
		flow.WithRules(rules),
		flow.WithHistoryLimit(config.HistoryLimit),
	)

	if err := tr.service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}

	rhOpts := []messaging.ResponseHandlerOption{messaging.WithTurnTimeout(config.TurnTimeout)}
	var pruner scheduler.InboundPruner
	if dedup, ok := st.(store.DedupRepo); ok {
		rhOpts = append(rhOpts, messaging.WithDedup(dedup))
		pruner = dedup
	}
	respHandler := messaging.NewResponseHandler(tr.service, engine, rhOpts...)
	intakeCtx, stopIntake := context.WithCancel(ctx)
	defer stopIntake()
	respHandler.Start(intakeCtx)

	sched := scheduler.NewScheduler()
	maintenance := scheduler.NewMaintenance(pruner, sessions,
		scheduler.WithDedupRetention(config.DedupRetention),
		scheduler.WithSessionIdle(config.SessionIdle),
	)
	if err := maintenance.Register(sched); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	sched.Start()

	apiOpts := []api.Option{api.WithAddr(config.APIAddr), api.WithShutdownTimeout(config.ShutdownTimeout)}
	for path, h := range tr.webhooks {
		apiOpts = append(apiOpts, api.WithWebhook(path, h))
	}
	server := api.NewServer(tr.service, st, sessions, apiOpts...)

	slog.Info("Bootstrapping LeadPipe", "state_dir", config.StateDir, "api_addr", config.APIAddr, "min_loan_amount", rules.MinLoanAmount)
	serveErr := server.Run(ctx)
	stopIntake()

	// Turns already accepted finish before the transport goes away.
	drainCtx, cancel := context.WithTimeout(context.Background(), config.TurnTimeout)
	defer cancel()
	if err := respHandler.Wait(drainCtx); err != nil {
		slog.Warn("Shutdown: in-flight turns did not finish", "error", err)
	}
	if err := sched.Stop(drainCtx); err != nil {
		slog.Warn("Shutdown: maintenance jobs did not finish", "error", err)
	}
	if err := tr.service.Stop(); err != nil {
		slog.Warn("Shutdown: failed to stop messaging service", "error", err)
	}
	return serveErr
}

// redactDSN hides credentials in a DSN for logging.
func redactDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at != -1 {
		if scheme := strings.Index(dsn, "://"); scheme != -1 && scheme < at {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	if strings.Contains(dsn, "password=") {
		return "***"
	}
	return dsn
}
