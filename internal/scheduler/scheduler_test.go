package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	redisURL string
}

func (c testSchedulerConfig) GetRedisURL() string             { return c.redisURL }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool       { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string       { return "funnel" }
func (c testSchedulerConfig) GetAsynqConcurrency() int        { return 1 }
func (c testSchedulerConfig) GetSweepInterval() time.Duration { return 12 * time.Hour }

func TestSweepRunPayloadRoundTrip(t *testing.T) {
	task, err := NewSweepRunTask(SweepRunPayload{RequestedBy: "ticker"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TaskSweepRun {
		t.Errorf("expected task type %q, got %q", TaskSweepRun, task.Type())
	}

	payload, err := ParseSweepRunPayload(task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.RequestedBy != "ticker" {
		t.Errorf("expected requestedBy ticker, got %q", payload.RequestedBy)
	}
}

func TestPlaceCallPayloadRoundTrip(t *testing.T) {
	task, err := NewPlaceCallTask(PlaceCallPayload{LeadID: "lead-7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, err := ParsePlaceCallPayload(task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.LeadID != "lead-7" {
		t.Errorf("expected lead-7, got %q", payload.LeadID)
	}
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	task := asynq.NewTask(TaskSweepRun, []byte("not json"))
	if _, err := ParseSweepRunPayload(task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestClientEnqueuesAgainstRedis(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(testSchedulerConfig{redisURL: "redis://" + srv.Addr()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if err := client.ScheduleSweep(context.Background(), "test"); err != nil {
		t.Fatalf("expected sweep enqueue to succeed, got %v", err)
	}
	if err := client.ScheduleCall(context.Background(), "lead-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("expected call enqueue to succeed, got %v", err)
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{}); err == nil {
		t.Fatal("expected error without redis url")
	}
}
