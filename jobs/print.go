package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/posdesk/internal/jobs"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/spool"
)

// Printer starts print jobs.
type Printer interface {
	Print(ctx context.Context, doc printdoc.Document) (*spool.Job, error)
}

// PrintDocumentJob prints queued documents through the spool driver.
type PrintDocumentJob struct {
	Printer Printer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPrintDocumentJob initialises the print handler.
func NewPrintDocumentJob(printer Printer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PrintDocumentJob {
	return &PrintDocumentJob{Printer: printer, Logger: logger, Metrics: metrics}
}

// Handle prints the task's document and waits for its cleanup. Timeouts and
// render failures are retried; malformed payloads are not.
func (j *PrintDocumentJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Printer == nil {
		return errors.New("print job: handler not configured")
	}
	var payload PrintPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("print job: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(payload.Document.HTML) == "" {
		return fmt.Errorf("%w: %w", ErrEmptyPayload, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskPrintDocument)
	defer func() {
		err = tracker.End(err)
	}()

	job, err := j.Printer.Print(ctx, payload.Document)
	if err != nil {
		return fmt.Errorf("print job: start: %w", err)
	}
	if err := job.Wait(ctx); err != nil {
		job.Dispose()
		return fmt.Errorf("print job: wait: %w", err)
	}

	logger := j.logger().With(
		slog.String("job_id", job.ID),
		slog.String("source", payload.Source),
		slog.String("reason", job.Reason()),
	)
	switch job.Reason() {
	case spool.ReasonPrinted:
		logger.Info("print task done", slog.String("output", job.Output()))
		return nil
	default:
		logger.Warn("print task failed", slog.Any("error", job.Err()))
		if job.Err() != nil {
			return fmt.Errorf("print job: %s: %w", job.Reason(), job.Err())
		}
		return fmt.Errorf("print job: %s", job.Reason())
	}
}

func (j *PrintDocumentJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
