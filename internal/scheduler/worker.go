package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadfunnel_backend/internal/funnel"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine *funnel.Engine
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, engine *funnel.Engine, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		engine: engine,
		log:    log,
	}

	mux.HandleFunc(TaskSweepRun, w.handleSweepRun)
	mux.HandleFunc(TaskPlaceCall, w.handlePlaceCall)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleSweepRun(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSweepRunPayload(task)
	if err != nil {
		return err
	}

	summary, err := w.engine.RunSweep(ctx)
	if err != nil {
		return err
	}

	w.log.Info("sweep task finished",
		"requested_by", payload.RequestedBy,
		"leads_processed", summary.LeadsProcessed,
		"emails_sent", summary.EmailsSent,
		"bookings_detected", summary.BookingsDetected,
		"escalations", summary.Escalations,
		"errors", summary.Errors)
	return nil
}

func (w *Worker) handlePlaceCall(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePlaceCallPayload(task)
	if err != nil {
		return err
	}

	placed, err := w.engine.MaybeTriggerCall(ctx, payload.LeadID)
	if err != nil {
		return err
	}
	if !placed {
		w.log.Info("call task skipped, lead no longer eligible", "lead_id", payload.LeadID)
	}
	return nil
}

// SweepTicker enqueues a sweep task on a fixed interval. It runs in the
// scheduler binary next to the worker so sweeps survive API restarts.
type SweepTicker struct {
	client   *Client
	interval time.Duration
	log      *logger.Logger
}

func NewSweepTicker(client *Client, interval time.Duration, log *logger.Logger) *SweepTicker {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	return &SweepTicker{client: client, interval: interval, log: log}
}

func (t *SweepTicker) Run(ctx context.Context) {
	if t == nil || t.client == nil {
		return
	}

	t.enqueue(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.enqueue(ctx)
		}
	}
}

func (t *SweepTicker) enqueue(ctx context.Context) {
	if err := t.client.ScheduleSweep(ctx, "ticker"); err != nil {
		t.log.Warn("sweep enqueue failed", "error", err)
	}
}
