package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadfunnel_backend/internal/analyzer"
	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/booking/calendly"
	"leadfunnel_backend/internal/channels"
	"leadfunnel_backend/internal/channels/email"
	"leadfunnel_backend/internal/channels/sms"
	"leadfunnel_backend/internal/channels/voice"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/crm/closeapi"
	"leadfunnel_backend/internal/crm/postgres"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnel"
	"leadfunnel_backend/internal/funnel/domain"
	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/internal/http/router"
	"leadfunnel_backend/internal/notify"
	"leadfunnel_backend/internal/notify/slack"
	"leadfunnel_backend/internal/reports"
	"leadfunnel_backend/internal/webhook"
	"leadfunnel_backend/platform/ai/moonshot"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/db"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	val := validator.New()

	// ========================================================================
	// Funnel Engine (Composition Root)
	// ========================================================================

	engine := buildEngine(ctx, cfg, pool, eventBus, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	webhookModule := webhook.NewModule(pool, engine, val, log)

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			webhookModule,
		},
	}

	ginEngine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- ginEngine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// buildEngine wires the funnel engine's ports from configuration.
// Providers without credentials fall back to noops so a development
// instance runs with just Postgres.
func buildEngine(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) *funnel.Engine {
	var store crm.RecordStore
	if cfg.IsCRMEnabled() {
		store = closeapi.NewClient(cfg, log)
		log.Info("record store: external CRM", "base_url", cfg.GetCRMBaseURL())
	} else {
		store = postgres.New(pool)
		log.Info("record store: postgres")
	}

	var oracle booking.Oracle = booking.NoopOracle{}
	if cfg.IsBookingEnabled() {
		oracle = calendly.NewClient(cfg, log)
	}

	var emailSender channels.EmailSender = channels.NoopEmailSender{}
	if cfg.GetEmailEnabled() {
		emailSender = email.NewSMTPSender(cfg)
	} else {
		log.Warn("email not configured; nurture sends disabled")
	}

	var smsSender channels.SMSSender = channels.NoopSMSSender{}
	if cfg.IsSMSEnabled() {
		smsSender = sms.NewClient(cfg, log)
	}

	var voiceCaller channels.VoiceCaller = channels.NoopVoiceCaller{}
	if cfg.IsVoiceEnabled() {
		voiceCaller = voice.NewClient(cfg, log)
	}

	var messageAnalyzer analyzer.Analyzer = analyzer.NewRulesAnalyzer()
	if cfg.IsAnalyzerEnabled() {
		llm, err := analyzer.NewLLMAnalyzer(cfg.GetMoonshotAPIKey(), log)
		if err != nil {
			log.Warn("llm analyzer init failed, using keyword rules", "error", err.Error())
		} else {
			messageAnalyzer = llm
		}
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.IsNotifierEnabled() {
		notifier = slack.NewClient(cfg, log)
	}

	cadence, err := domain.LoadCadence(cfg.GetCadenceFile())
	if err != nil {
		log.Error("cadence file rejected", "error", err.Error())
		panic("cadence file rejected: " + err.Error())
	}

	return funnel.New(funnel.Config{
		Store:       store,
		Oracle:      oracle,
		Email:       emailSender,
		SMS:         smsSender,
		Voice:       voiceCaller,
		Analyzer:    messageAnalyzer,
		Notifier:    notifier,
		Reports:     newReportsGenerator(ctx, cfg, log),
		Cadence:     cadence,
		Bus:         bus,
		Logger:      log,
		BookingLink: cfg.GetBookingLink(),
	})
}

func newReportsGenerator(ctx context.Context, cfg *config.Config, log *logger.Logger) *reports.Generator {
	llm := newReportModel(cfg)

	if !cfg.IsMinIOEnabled() {
		return reports.NewGenerator(nil, "", llm, log)
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		log.Warn("minio client init failed, reports will not be archived", "error", err.Error())
		return reports.NewGenerator(nil, "", llm, log)
	}

	bucket := cfg.GetMinioBucketReports()
	exists, err := client.BucketExists(ctx, bucket)
	if err == nil && !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	}
	if err != nil {
		log.Warn("report bucket unavailable, reports will not be archived",
			"bucket", bucket, "error", err.Error())
		return reports.NewGenerator(nil, "", llm, log)
	}

	return reports.NewGenerator(client, bucket, llm, log)
}

// newReportModel returns the language model that writes report bodies,
// or nil when no key is configured and the static templates apply.
func newReportModel(cfg *config.Config) reports.TextModel {
	if !cfg.IsAnalyzerEnabled() {
		return nil
	}
	return moonshot.NewModel(moonshot.Config{
		APIKey:          cfg.GetMoonshotAPIKey(),
		Model:           "kimi-k2.5",
		DisableThinking: true,
	})
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
