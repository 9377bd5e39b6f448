package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskDispatchRetrySweep = "dispatch.retry_sweep"

type RetrySweepPayload struct {
	RequestedAt time.Time `json:"requestedAt"`
}

func NewRetrySweepTask(payload RetrySweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatchRetrySweep, data), nil
}

func ParseRetrySweepPayload(task *asynq.Task) (RetrySweepPayload, error) {
	var payload RetrySweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RetrySweepPayload{}, err
	}
	return payload, nil
}
