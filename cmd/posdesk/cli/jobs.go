package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/posdesk/jobs"
)

// JobsCLI wraps manual management helpers for the print queue.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address not configured")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// EnqueuePrint queues a document for the print worker.
func (c *JobsCLI) EnqueuePrint(ctx context.Context, payload jobs.PrintPayload) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := jobs.NewPrintTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueuePrint), asynq.MaxRetry(2), asynq.Timeout(time.Minute))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the print queue counters.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueuePrint)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueuePrint}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListFailed returns archived print tasks, newest first as asynq stores them.
func (c *JobsCLI) ListFailed(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListArchivedTasks(jobs.QueuePrint, asynq.PageSize(size), asynq.Page(1))
}

// Retry moves an archived print task back to pending.
func (c *JobsCLI) Retry(ctx context.Context, id string) error {
	if c == nil || c.inspector == nil {
		return errors.New("jobs cli: inspector not configured")
	}
	return c.inspector.RunTask(jobs.QueuePrint, id)
}

func newJobsCommand(e *env) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the print queue",
	}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show print queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(e, func(c *JobsCLI) error {
				s, err := c.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
					s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
				return nil
			})
		},
	}
	failed := &cobra.Command{
		Use:   "failed",
		Short: "List print tasks that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(e, func(c *JobsCLI) error {
				tasks, err := c.ListFailed(cmd.Context(), size)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.LastFailedAt.Format(time.RFC3339), t.LastErr)
				}
				return nil
			})
		},
	}
	failed.Flags().IntVar(&size, "size", 10, "number of tasks to list")
	retry := &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Requeue an archived print task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(e, func(c *JobsCLI) error {
				return c.Retry(cmd.Context(), args[0])
			})
		},
	}
	cmd.AddCommand(stats, failed, retry)
	return cmd
}

func withJobsCLI(e *env, fn func(*JobsCLI) error) error {
	c, err := NewJobsCLI(e.cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
