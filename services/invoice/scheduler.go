// File: services/invoice/scheduler.go
package invoice

import (
	"context"
	"time"

	"corebill/services/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// AsynqScheduler queues future invoice runs as delayed tasks.
type AsynqScheduler struct {
	client *asynq.Client
}

func NewAsynqScheduler(client *asynq.Client) *AsynqScheduler {
	return &AsynqScheduler{client: client}
}

func (s *AsynqScheduler) ScheduleInvoiceRun(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	task, opts, err := tasks.NewInvoiceProcessTask(tasks.InvoiceProcessPayload{
		AccountID:  accountID.String(),
		TargetTime: at,
	}, at)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task, opts...)
	return err
}
