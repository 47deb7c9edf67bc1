package main

import (
	"context"
	"errors"
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
	"leadfunnel_backend/internal/notify"
	"leadfunnel_backend/internal/notify/slack"
	"leadfunnel_backend/internal/reports"
	"leadfunnel_backend/internal/scheduler"
	"leadfunnel_backend/platform/ai/moonshot"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/db"
	"leadfunnel_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	engine := buildEngine(cfg, pool, eventBus, log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	ticker := scheduler.NewSweepTicker(client, cfg.GetSweepInterval(), log)
	go ticker.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, engine, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

// buildEngine mirrors the API binary's wiring minus the report archive;
// sweeps generate reports but the worker does not own the MinIO bucket.
func buildEngine(cfg *config.Config, pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) *funnel.Engine {
	var store crm.RecordStore
	if cfg.IsCRMEnabled() {
		store = closeapi.NewClient(cfg, log)
	} else {
		store = postgres.New(pool)
	}

	var oracle booking.Oracle = booking.NoopOracle{}
	if cfg.IsBookingEnabled() {
		oracle = calendly.NewClient(cfg, log)
	}

	var emailSender channels.EmailSender = channels.NoopEmailSender{}
	if cfg.GetEmailEnabled() {
		emailSender = email.NewSMTPSender(cfg)
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
	var reportModel reports.TextModel
	if cfg.IsAnalyzerEnabled() {
		llm, err := analyzer.NewLLMAnalyzer(cfg.GetMoonshotAPIKey(), log)
		if err != nil {
			log.Warn("llm analyzer init failed, using keyword rules", "error", err.Error())
		} else {
			messageAnalyzer = llm
		}
		reportModel = moonshot.NewModel(moonshot.Config{
			APIKey:          cfg.GetMoonshotAPIKey(),
			Model:           "kimi-k2.5",
			DisableThinking: true,
		})
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.IsNotifierEnabled() {
		notifier = slack.NewClient(cfg, log)
	}
	notify.SubscribeSweepSummary(bus, notifier)

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
		Reports:     reports.NewGenerator(nil, "", reportModel, log),
		Cadence:     cadence,
		Bus:         bus,
		Logger:      log,
		BookingLink: cfg.GetBookingLink(),
	})
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
