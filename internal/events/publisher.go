// Package events publishes job state transitions.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// Publisher delivers job events. Delivery is best effort; the orchestrator
// logs publish failures and carries on.
type Publisher interface {
	Publish(ctx context.Context, ev entity.JobEvent) error
}

// NewEvent stamps an event with an id and time.
func NewEvent(typ constants.JobEventType, jobID string) entity.JobEvent {
	return entity.JobEvent{
		ID:    uuid.New().String(),
		Type:  typ,
		JobID: jobID,
		At:    time.Now().UTC(),
	}
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev entity.JobEvent) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"event_id", ev.ID, "job_id", ev.JobID, "type", string(ev.Type)}
	if ev.Stage != "" {
		attrs = append(attrs, "stage", ev.Stage)
	}
	if ev.Error != "" {
		attrs = append(attrs, "error", ev.Error)
	}
	if ev.Result != nil {
		attrs = append(attrs, "grand_total", ev.Result.GrandTotal, "grade", ev.Result.Grade)
	}
	logger.Info("job.event", attrs...)
	return nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev entity.JobEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, entity.JobEvent) error { return nil }
