package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"

	TaskBillingDaily           = "billing:daily"
	TaskBillingMarkOverdue     = "billing:mark-overdue"
	TaskBillingAutoRenew       = "billing:auto-renew"
	TaskBillingReminders       = "billing:reminders"
	TaskBillingMonthlyInvoices = "billing:monthly-invoices"
)

// BillingUniqueTTL keeps a second copy of a billing task out of the queue
// while the first one is pending or running.
const BillingUniqueTTL = time.Hour

// BillingOptions are the enqueue options of every billing task.
func BillingOptions() []asynq.Option {
	return []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Unique(BillingUniqueTTL)}
}

// BillingTasks lists the billing task types that can be triggered by hand.
var BillingTasks = []string{
	TaskBillingDaily,
	TaskBillingMarkOverdue,
	TaskBillingAutoRenew,
	TaskBillingReminders,
	TaskBillingMonthlyInvoices,
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// MonthlyInvoicesPayload selects the month to invoice, formatted YYYY-MM.
// An empty period means the current month.
type MonthlyInvoicesPayload struct {
	Period string `json:"period,omitempty"`
}

// Month parses the period, falling back to now.
func (p MonthlyInvoicesPayload) Month(now time.Time) (time.Time, error) {
	if p.Period == "" {
		return now, nil
	}
	t, err := time.Parse("2006-01", p.Period)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q", p.Period)
	}
	return t, nil
}

// NewMonthlyInvoicesTask builds a monthly invoicing task for period (YYYY-MM,
// may be empty).
func NewMonthlyInvoicesTask(period string) (*asynq.Task, error) {
	if period != "" {
		if _, err := (MonthlyInvoicesPayload{Period: period}).Month(time.Time{}); err != nil {
			return nil, err
		}
	}
	data, err := json.Marshal(MonthlyInvoicesPayload{Period: period})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingMonthlyInvoices, data), nil
}

// NewBillingTask builds the task for one of BillingTasks with its default
// payload.
func NewBillingTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskBillingMonthlyInvoices:
		return NewMonthlyInvoicesTask("")
	case TaskBillingDaily, TaskBillingMarkOverdue, TaskBillingAutoRenew, TaskBillingReminders:
		return asynq.NewTask(taskType, []byte("{}")), nil
	}
	return nil, fmt.Errorf("jobs: unsupported task %q", taskType)
}
