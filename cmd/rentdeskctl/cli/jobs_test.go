package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/jobs"
)

type stubQueue struct {
	tasks []*asynq.Task
}

func (s *stubQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct{}

func (stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Scheduled: 1}, nil
}

func TestTrigger(t *testing.T) {
	q := &stubQueue{}
	c := &JobsCLI{client: q, inspector: stubInspector{}}

	info, err := c.Trigger(context.Background(), jobs.TaskBillingDaily, "")
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskBillingDaily, info.Type)

	_, err = c.Trigger(context.Background(), jobs.TaskBillingMonthlyInvoices, "2024-05")
	require.NoError(t, err)
	var payload jobs.MonthlyInvoicesPayload
	require.NoError(t, json.Unmarshal(q.tasks[1].Payload(), &payload))
	assert.Equal(t, "2024-05", payload.Period)

	_, err = c.Trigger(context.Background(), "inventory:reval", "")
	assert.ErrorContains(t, err, "unsupported job")
	_, err = c.Trigger(context.Background(), jobs.TaskBillingMonthlyInvoices, "mai")
	assert.Error(t, err)
	assert.Len(t, q.tasks, 2)
}

func TestInspectQueue(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{}}
	stats, err := c.InspectQueue()
	require.NoError(t, err)
	assert.Equal(t, jobs.QueueStats{Queue: jobs.QueueDefault, Pending: 2, Scheduled: 1}, stats)

	_, err = (&JobsCLI{}).InspectQueue()
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"migrate", "up"}, {"migrate", "force"}, {"seed-admin"}, {"jobs", "run"}, {"jobs", "stats"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
