package domain

import (
	"context"
	"errors"
	"time"
)

// EventProcessPaidTransaction sends the donation receipt for payload["order_id"].
const EventProcessPaidTransaction = "process_paid_transaction"

// Job is a deferred notification.
type Job struct {
	ID      string            `json:"id"`
	Event   string            `json:"event"`
	Payload map[string]string `json:"payload"`
	DueAt   time.Time         `json:"due_at"`
	// Attempts counts failed deliveries so far.
	Attempts int `json:"attempts"`
}

// Dispatcher schedules work to run after a delay. Scheduling is fire and
// forget; the returned error is only worth logging.
type Dispatcher interface {
	Schedule(ctx context.Context, delay time.Duration, event string, payload map[string]string) error
}

// Handler executes a due job.
type Handler func(ctx context.Context, job Job) error

// Runner routes a due job to its handler.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// MaxAttempts bounds redelivery of a failing job.
const MaxAttempts = 5

var (
	ErrUnknownEvent = errors.New("unknown_notification_event")
	ErrInvalidJob   = errors.New("invalid_notification_job")
)
