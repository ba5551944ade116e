package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/rentdesk/rentdesk/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    jobs.TaskEnqueuer
	inspector jobs.QueueInspector
	closers   []io.Closer
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client := jobs.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector, closers: []io.Closer{client, inspector}}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a billing task by name. period only applies to
// billing:monthly-invoices.
func (c *JobsCLI) Trigger(ctx context.Context, name, period string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	if !slices.Contains(jobs.BillingTasks, name) {
		return nil, fmt.Errorf("jobs cli: unsupported job %s (expected one of %s)", name, strings.Join(jobs.BillingTasks, ", "))
	}
	var (
		task *asynq.Task
		err  error
	)
	if name == jobs.TaskBillingMonthlyInvoices {
		task, err = jobs.NewMonthlyInvoicesTask(period)
	} else {
		task, err = jobs.NewBillingTask(name)
	}
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task, jobs.BillingOptions()...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("jobs cli: %s is already queued", name)
	}
	return info, err
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue() (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.InspectQueue(c.inspector)
}

func jobsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	var period string
	run := &cobra.Command{
		Use:   "run TASK",
		Short: "Enqueue a billing task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := NewJobsCLI(e.cfg.RedisAddr)
			defer func() { _ = c.Close() }()
			info, err := c.Trigger(cmd.Context(), args[0], period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	run.Flags().StringVar(&period, "period", "", "month to invoice (YYYY-MM), billing:monthly-invoices only")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print queue statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := NewJobsCLI(e.cfg.RedisAddr)
			defer func() { _ = c.Close() }()
			s, err := c.InspectQueue()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	}

	cmd.AddCommand(run, stats)
	return cmd
}
