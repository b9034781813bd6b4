package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// JobsCLI triggers ledger checks and inspects their queue from the command line.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects to the Redis instance backing the worker.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// ResolveTask maps a check name or its dashed alias to the task type.
func ResolveTask(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case jobs.TaskGLIntegrity, "gl-integrity":
		return jobs.TaskGLIntegrity, nil
	case jobs.TaskStockReconcile, "stock-reconcile":
		return jobs.TaskStockReconcile, nil
	default:
		return "", fmt.Errorf("jobs cli: unsupported check %q", name)
	}
}

// Trigger enqueues a check by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	taskType, err := ResolveTask(name)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueCheck(ctx, taskType, "manual")
}

// QueueStats summarises the check queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Failed    int
}

func (s QueueStats) String() string {
	return fmt.Sprintf("%s: pending=%d active=%d scheduled=%d retry=%d failed=%d",
		s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Failed)
}

// InspectQueue reports the state of the check queue.
func (c *JobsCLI) InspectQueue(_ context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Failed = info.Failed
	}
	return stats, nil
}
