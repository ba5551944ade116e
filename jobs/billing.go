package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rentdesk/rentdesk/internal/billing"
	jobmetrics "github.com/rentdesk/rentdesk/internal/jobs"
)

// BillingRules is the part of the billing service the worker drives.
type BillingRules interface {
	MarkOverdue(ctx context.Context) (int, error)
	AutoRenewContracts(ctx context.Context) (renewed, expired int, err error)
	SendPaymentReminders(ctx context.Context) (int, error)
	GenerateMonthlyInvoices(ctx context.Context, period time.Time) (int, error)
	RunDaily(ctx context.Context) (billing.Report, error)
	Today() time.Time
}

// BillingJob runs the billing rules from queued tasks.
type BillingJob struct {
	rules   BillingRules
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewBillingJob wires the billing handlers.
func NewBillingJob(rules BillingRules, logger *slog.Logger, metrics *jobmetrics.Metrics) *BillingJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingJob{rules: rules, logger: logger, metrics: metrics}
}

// Handlers lists the task handlers to register on the worker.
func (j *BillingJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskBillingDaily, Handler: j.HandleDaily},
		{Type: TaskBillingMarkOverdue, Handler: j.HandleMarkOverdue},
		{Type: TaskBillingAutoRenew, Handler: j.HandleAutoRenew},
		{Type: TaskBillingReminders, Handler: j.HandleReminders},
		{Type: TaskBillingMonthlyInvoices, Handler: j.HandleMonthlyInvoices},
	}
}

// HandleDaily runs every rule and logs the report.
func (j *BillingJob) HandleDaily(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.rules == nil {
		return errors.New("billing job: handler not configured")
	}
	tracker := j.metrics.Track(TaskBillingDaily)
	report, err := j.rules.RunDaily(ctx)
	j.metrics.AddProcessed(billing.RuleMarkOverdue, report.MarkedOverdue)
	j.metrics.AddProcessed(billing.RuleAutoRenew, report.Renewed+report.Expired)
	j.metrics.AddProcessed(billing.RuleReminders, report.Reminders)
	j.metrics.AddProcessed(billing.RuleMonthlyInvoices, report.InvoicesCreated)
	logger := j.logger.With(
		slog.Int("marked_overdue", report.MarkedOverdue),
		slog.Int("renewed", report.Renewed),
		slog.Int("expired", report.Expired),
		slog.Int("reminders", report.Reminders),
		slog.Int("invoices_created", report.InvoicesCreated),
	)
	if err != nil {
		logger.Error("daily billing finished with errors", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("daily billing complete")
	return tracker.End(nil)
}

// HandleMarkOverdue flags invoices past due.
func (j *BillingJob) HandleMarkOverdue(ctx context.Context, _ *asynq.Task) error {
	return j.runCount(TaskBillingMarkOverdue, billing.RuleMarkOverdue, func() (int, error) {
		return j.rules.MarkOverdue(ctx)
	})
}

// HandleAutoRenew renews or expires lapsed contracts.
func (j *BillingJob) HandleAutoRenew(ctx context.Context, _ *asynq.Task) error {
	return j.runCount(TaskBillingAutoRenew, billing.RuleAutoRenew, func() (int, error) {
		renewed, expired, err := j.rules.AutoRenewContracts(ctx)
		return renewed + expired, err
	})
}

// HandleReminders emails tenants with invoices coming due.
func (j *BillingJob) HandleReminders(ctx context.Context, _ *asynq.Task) error {
	return j.runCount(TaskBillingReminders, billing.RuleReminders, func() (int, error) {
		return j.rules.SendPaymentReminders(ctx)
	})
}

// HandleMonthlyInvoices generates the invoices of the payload month.
func (j *BillingJob) HandleMonthlyInvoices(ctx context.Context, t *asynq.Task) error {
	var payload MonthlyInvoicesPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode monthly invoices payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	period, err := payload.Month(j.rules.Today())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return j.runCount(TaskBillingMonthlyInvoices, billing.RuleMonthlyInvoices, func() (int, error) {
		return j.rules.GenerateMonthlyInvoices(ctx, period)
	})
}

func (j *BillingJob) runCount(task, rule string, fn func() (int, error)) error {
	if j == nil || j.rules == nil {
		return errors.New("billing job: handler not configured")
	}
	tracker := j.metrics.Track(task)
	n, err := fn()
	j.metrics.AddProcessed(rule, n)
	if err != nil {
		j.logger.Error("billing rule failed", slog.String("task", task), slog.Int("processed", n), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("billing rule complete", slog.String("task", task), slog.Int("processed", n))
	return tracker.End(nil)
}
