package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TypeEventPublish = "event:publish"

// EventPublishPayload is one drained outbox entry on its way to subscribers.
type EventPublishPayload struct {
	Kind      string          `json:"kind"`
	AccountID string          `json:"account_id"`
	Event     json.RawMessage `json:"event"`
}

func NewEventPublishTask(payload EventPublishPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeEventPublish, b)
	opts := []asynq.Option{asynq.MaxRetry(5)}

	return task, opts, nil
}
