package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TypeInvoiceProcess = "invoice:process"

// InvoiceProcessPayload asks the worker to run one invoice dispatch cycle for
// an account at (or after) TargetTime.
type InvoiceProcessPayload struct {
	AccountID  string    `json:"account_id"`
	TargetTime time.Time `json:"target_time"`
}

func NewInvoiceProcessTask(payload InvoiceProcessPayload, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeInvoiceProcess, b)
	opts := []asynq.Option{asynq.ProcessAt(fireAt)}

	return task, opts, nil
}
