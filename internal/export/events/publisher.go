// Package events implements the Job Lifecycle Event Publisher named in
// SPEC_FULL.md §2 item 10: a best-effort publisher of job status
// transitions onto a RabbitMQ topic exchange, adapted from the
// teacher's shared/rabbitmq client. A publish failure is logged and
// never fails or blocks the export pipeline.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/column-stream/exportd/internal/export/domain"
)

// publisher is the subset of rabbitmq.Client this package depends on,
// kept narrow so tests can supply a fake.
type publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Event is one job-lifecycle transition, serialized as JSON onto the
// configured exchange.
type Event struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	RowsWritten int64     `json:"rows_written"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher emits Events through an underlying RabbitMQ client. It is
// safe to construct with a nil client: in that configuration every
// Publish call is a silent no-op, letting the pipeline run without a
// broker configured (e.g. in tests or local development).
type Publisher struct {
	client publisher
	logger *slog.Logger
}

func New(client publisher, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish emits ev. Failures are logged at warn level and swallowed —
// an external analytics/notification consumer is named but out of
// scope per SPEC_FULL.md §2, so nothing downstream depends on delivery.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.client == nil {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("failed to marshal job lifecycle event",
			slog.String("job_id", ev.JobID),
			slog.Any("error", err),
		)
		return
	}

	if err := p.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		p.logger.Warn("failed to publish job lifecycle event",
			slog.String("job_id", ev.JobID),
			slog.String("status", ev.Status),
			slog.Any("error", err),
		)
	}
}

// PublishStatus is a convenience wrapper building an Event from a job's
// current fields.
func (p *Publisher) PublishStatus(ctx context.Context, job *domain.ExportJob) {
	p.Publish(ctx, Event{
		JobID:       job.ID,
		Status:      string(job.Status),
		RowsWritten: job.RowsWritten,
		Error:       job.Error,
		OccurredAt:  time.Now(),
	})
}
