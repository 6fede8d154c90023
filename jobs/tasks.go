package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile re-derives every account balance from transaction
	// history and reports drift.
	TaskLedgerReconcile = "ledger:reconcile"
)

// ReconcilePayload tunes the reconciliation sweep.
type ReconcilePayload struct {
	// FailOnDrift makes the task return an error when any account drifted,
	// so the queue records the run as failed.
	FailOnDrift bool `json:"fail_on_drift"`
}

// NewReconcileTask constructs an Asynq task for the reconciliation sweep.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, data), nil
}
