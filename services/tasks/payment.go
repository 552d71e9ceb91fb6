package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TypePaymentStateNotify = "payment:notify_state"

// PaymentStateNotifyPayload resolves a pending transaction once the gateway
// reports its final verdict.
type PaymentStateNotifyPayload struct {
	AccountID              string `json:"account_id"`
	TransactionExternalKey string `json:"transaction_external_key"`
	Success                bool   `json:"success"`
}

func NewPaymentStateNotifyTask(payload PaymentStateNotifyPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypePaymentStateNotify, b)
	opts := []asynq.Option{asynq.MaxRetry(3)}

	return task, opts, nil
}
