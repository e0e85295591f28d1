package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/posdesk/internal/printdoc"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueuePrint carries print jobs so a backlog never starves other work.
	QueuePrint = "print"
	// TaskPrintDocument is the task type for printing a built document.
	TaskPrintDocument = "print:document"
)

// ErrEmptyPayload is returned for print tasks without a document body.
var ErrEmptyPayload = errors.New("jobs: print payload has no document")

// PrintPayload describes one queued print.
type PrintPayload struct {
	Document printdoc.Document `json:"document"`
	// Source identifies what was printed, e.g. "invoice:42" or "report:vat".
	Source string `json:"source,omitempty"`
}

// NewPrintTask constructs an Asynq task.
func NewPrintTask(payload PrintPayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.Document.HTML) == "" {
		return nil, ErrEmptyPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPrintDocument, data), nil
}
