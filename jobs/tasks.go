package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueEvents carries relayed ledger events.
	QueueEvents = "events"

	// TaskOutboxRelay moves committed outbox rows onto the events queue.
	TaskOutboxRelay = "ledger:outbox_relay"
	// TaskGLIntegrity checks that every posted entry balances.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskInventoryIntegrity replays movement history against stock balances.
	TaskInventoryIntegrity = "ledger:inventory_integrity"
	// TaskDepreciationRun posts the period's depreciation for every due asset.
	TaskDepreciationRun = "ledger:depreciation_run"
)

// GLIntegrityPayload scopes the check to one period; zero checks all periods.
type GLIntegrityPayload struct {
	PeriodID int64 `json:"period_id"`
}

// InventoryIntegrityPayload bounds how many keys are verified at once.
type InventoryIntegrityPayload struct {
	Parallelism int `json:"parallelism"`
}

// DepreciationRunPayload selects the period to depreciate. A zero period is
// resolved from the run date.
type DepreciationRunPayload struct {
	PeriodID int64 `json:"period_id"`
	ActorID  int64 `json:"actor_id"`
}

// NewOutboxRelayTask constructs the relay task.
func NewOutboxRelayTask() *asynq.Task {
	return asynq.NewTask(TaskOutboxRelay, nil, asynq.Queue(QueueDefault))
}

// NewGLIntegrityTask constructs a journal balance check.
func NewGLIntegrityTask(periodID int64) (*asynq.Task, error) {
	return newTask(TaskGLIntegrity, GLIntegrityPayload{PeriodID: periodID})
}

// NewInventoryIntegrityTask constructs a stock replay check.
func NewInventoryIntegrityTask(parallelism int) (*asynq.Task, error) {
	return newTask(TaskInventoryIntegrity, InventoryIntegrityPayload{Parallelism: parallelism})
}

// NewDepreciationRunTask constructs a depreciation batch.
func NewDepreciationRunTask(periodID, actorID int64) (*asynq.Task, error) {
	return newTask(TaskDepreciationRun, DepreciationRunPayload{PeriodID: periodID, ActorID: actorID})
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

func decodePayload(t *asynq.Task, dest any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dest); err != nil {
		return asynq.SkipRetry
	}
	return nil
}
