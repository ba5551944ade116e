package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/billing"
	jobmetrics "github.com/rentdesk/rentdesk/internal/jobs"
	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/testing/webtest"
)

func TestNewBillingTask(t *testing.T) {
	for _, name := range BillingTasks {
		task, err := NewBillingTask(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, task.Type())
	}
	_, err := NewBillingTask("mail:send")
	assert.Error(t, err)

	_, err = NewMonthlyInvoicesTask("2024-13")
	assert.Error(t, err)
	task, err := NewMonthlyInvoicesTask("2024-02")
	require.NoError(t, err)
	assert.JSONEq(t, `{"period":"2024-02"}`, string(task.Payload()))
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: 1025, From: "no-reply@rentdesk.local"})
	m.now = func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.Equal(t, "no-reply@rentdesk.local", from)
		return nil
	}

	require.NoError(t, m.SendMail(context.Background(), "jean@dupont.test", "Rappel de paiement", "Bonjour,\nMerci."))
	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, []string{"jean@dupont.test"}, gotTo)
	assert.Contains(t, gotMsg, "To: jean@dupont.test\r\n")
	assert.Contains(t, gotMsg, "Subject: Rappel de paiement\r\n")
	assert.Contains(t, gotMsg, "Date: Fri, 01 Mar 2024 08:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nBonjour,\r\nMerci."))

	require.NoError(t, m.SendMail(context.Background(), "a@b.test", "Réinitialisation", ""))
	assert.Contains(t, gotMsg, "Subject: =?utf-8?q?R=C3=A9initialisation?=\r\n")

	assert.Error(t, m.SendMail(context.Background(), "a@b.test\r\nBcc: x@y.test", "x", "y"))
}

type recordingSender struct {
	mu   sync.Mutex
	sent []SendEmailPayload
	err  error
}

func (s *recordingSender) SendMail(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, SendEmailPayload{To: to, Subject: subject, Body: body})
	return nil
}

func TestMailJob(t *testing.T) {
	sender := &recordingSender{}
	job := NewMailJob(sender, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.test", Subject: "s", Body: "b"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []SendEmailPayload{{To: "a@b.test", Subject: "s", Body: "b"}}, sender.sent)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte(`{"subject":"x"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	sender.err = errors.New("relay down")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type fakeQueue struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	q.opts = append(q.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: QueueDefault}, nil
}

func TestMailQueueEnqueues(t *testing.T) {
	q := &fakeQueue{}
	require.NoError(t, NewMailQueue(q).SendMail(context.Background(), "a@b.test", "Objet", "Corps"))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TaskTypeSendEmail, q.tasks[0].Type())
	var payload SendEmailPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, SendEmailPayload{To: "a@b.test", Subject: "Objet", Body: "Corps"}, payload)
}

type fakeRules struct {
	period time.Time
	report billing.Report
	err    error
	calls  []string
}

func (f *fakeRules) MarkOverdue(context.Context) (int, error) {
	f.calls = append(f.calls, "overdue")
	return 2, f.err
}

func (f *fakeRules) AutoRenewContracts(context.Context) (int, int, error) {
	f.calls = append(f.calls, "renew")
	return 1, 1, f.err
}

func (f *fakeRules) SendPaymentReminders(context.Context) (int, error) {
	f.calls = append(f.calls, "reminders")
	return 4, f.err
}

func (f *fakeRules) GenerateMonthlyInvoices(_ context.Context, period time.Time) (int, error) {
	f.calls = append(f.calls, "invoices")
	f.period = period
	return 3, f.err
}

func (f *fakeRules) RunDaily(context.Context) (billing.Report, error) {
	f.calls = append(f.calls, "daily")
	return f.report, f.err
}

func (f *fakeRules) Today() time.Time {
	return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
}

func TestBillingJobHandlers(t *testing.T) {
	rules := &fakeRules{report: billing.Report{MarkedOverdue: 1, Reminders: 2}}
	job := NewBillingJob(rules, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	handlers := map[string]asynq.HandlerFunc{}
	for _, h := range job.Handlers() {
		handlers[h.Type] = h.Handler
	}
	require.Len(t, handlers, len(BillingTasks))

	ctx := context.Background()
	for _, name := range []string{TaskBillingMarkOverdue, TaskBillingAutoRenew, TaskBillingReminders, TaskBillingDaily} {
		require.NoError(t, handlers[name](ctx, asynq.NewTask(name, []byte("{}"))), name)
	}
	assert.Equal(t, []string{"overdue", "renew", "reminders", "daily"}, rules.calls)

	task, err := NewMonthlyInvoicesTask("")
	require.NoError(t, err)
	require.NoError(t, handlers[TaskBillingMonthlyInvoices](ctx, task))
	assert.Equal(t, rules.Today(), rules.period)

	task, err = NewMonthlyInvoicesTask("2024-01")
	require.NoError(t, err)
	require.NoError(t, handlers[TaskBillingMonthlyInvoices](ctx, task))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rules.period)

	err = handlers[TaskBillingMonthlyInvoices](ctx, asynq.NewTask(TaskBillingMonthlyInvoices, []byte(`{"period":"janvier"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	rules.err = errors.New("db down")
	assert.Error(t, handlers[TaskBillingDaily](ctx, asynq.NewTask(TaskBillingDaily, nil)))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestHandlerHealth(t *testing.T) {
	h := NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil, nil, rbac.Middleware{})
	client := webtest.NewClient(t, "/jobs", nil, h.MountRoutes)

	rec := client.Get("/jobs/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, QueueStats{Queue: QueueDefault, Pending: 3, Retry: 1}, stats)

	h = NewHandler(fakeInspector{err: errors.New("redis down")}, nil, nil, rbac.Middleware{})
	client = webtest.NewClient(t, "/jobs", nil, h.MountRoutes)
	assert.Equal(t, http.StatusServiceUnavailable, client.Get("/jobs/health").Code)
}

func TestHandlerRun(t *testing.T) {
	q := &fakeQueue{}
	h := NewHandler(nil, q, nil, rbac.Middleware{})
	h.now = func() time.Time { return time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC) }
	admin := webtest.NewClient(t, "/jobs", webtest.Viewer(1, "admin"), h.MountRoutes)

	rec := admin.Post("/jobs/run/billing:mark-overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"task":"billing:mark-overdue","id":"task-1","timestamp":"2024-03-01T05:00:00Z"}`, rec.Body.String())
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TaskBillingMarkOverdue, q.tasks[0].Type())

	assert.Equal(t, http.StatusNotFound, admin.Post("/jobs/run/mail:send", nil).Code)

	manager := webtest.NewClient(t, "/jobs", webtest.Viewer(2, "manager"), h.MountRoutes)
	assert.Equal(t, http.StatusForbidden, manager.Post("/jobs/run/billing:daily", nil).Code)

	q.err = asynq.ErrDuplicateTask
	assert.Equal(t, http.StatusConflict, admin.Post("/jobs/run/billing:daily", nil).Code)

	q.err = errors.New("redis down")
	assert.Equal(t, http.StatusBadGateway, admin.Post("/jobs/run/billing:daily", nil).Code)
}

func TestBillingOptionsAreUnique(t *testing.T) {
	var unique bool
	for _, opt := range BillingOptions() {
		if opt.Type() == asynq.UniqueOpt {
			unique = true
			assert.Equal(t, BillingUniqueTTL, opt.Value())
		}
	}
	assert.True(t, unique)
}

type sweeper struct {
	olderThan time.Duration
	err       error
}

func (s *sweeper) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 3, s.err
}

func TestCleanupJob(t *testing.T) {
	keys := &sweeper{}
	job := NewCleanupJob(keys, 0, nil)
	h := job.Handler()
	assert.Equal(t, TaskIdempotencyCleanup, h.Type)
	require.NoError(t, h.Handler(context.Background(), NewCleanupTask()))
	assert.Equal(t, IdempotencyRetention, keys.olderThan)

	keys.err = errors.New("db down")
	assert.Error(t, job.Handle(context.Background(), NewCleanupTask()))

	var empty *CleanupJob
	assert.Error(t, empty.Handle(context.Background(), NewCleanupTask()))
}
