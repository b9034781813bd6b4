package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrity re-checks that every journal entry balances.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskStockReconcile rebuilds stock from the movement log and compares.
	TaskStockReconcile = "ledger:stock_reconcile"
)

// CheckPayload is shared by the integrity tasks.
type CheckPayload struct {
	RequestedAt time.Time `json:"requested_at"`
	Reason      string    `json:"reason,omitempty"`
}

func newCheckTask(taskType, reason string) (*asynq.Task, error) {
	data, err := json.Marshal(CheckPayload{RequestedAt: time.Now().UTC(), Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// NewGLIntegrityTask constructs the journal integrity task.
func NewGLIntegrityTask(reason string) (*asynq.Task, error) {
	return newCheckTask(TaskGLIntegrity, reason)
}

// NewStockReconcileTask constructs the stock reconciliation task.
func NewStockReconcileTask(reason string) (*asynq.Task, error) {
	return newCheckTask(TaskStockReconcile, reason)
}

func decodeCheck(t *asynq.Task) (CheckPayload, error) {
	var payload CheckPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return CheckPayload{}, asynq.SkipRetry
	}
	return payload, nil
}
