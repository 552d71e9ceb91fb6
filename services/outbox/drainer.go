// File: services/outbox/drainer.go
package outbox

import (
	"context"
	"time"

	outboxRepo "corebill/database/repository/outbox"
	"corebill/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Drainer delivers outbox entries to the task queue. Delivery is at least
// once: an entry is only marked published after a successful enqueue, and a
// failed enqueue is retried on the next tick.
type Drainer struct {
	repo      outboxRepo.OutboxRepository
	client    *asynq.Client
	interval  time.Duration
	batchSize int64
	log       *zap.Logger
}

func NewDrainer(repo outboxRepo.OutboxRepository, client *asynq.Client, interval time.Duration, batchSize int64, log *zap.Logger) *Drainer {
	return &Drainer{
		repo:      repo,
		client:    client,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Run drains on a ticker until the context is cancelled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DrainOnce(ctx); err != nil {
				d.log.Warn("outbox drain pass failed", zap.Error(err))
			}
		}
	}
}

// DrainOnce publishes one batch of unpublished entries in insertion order.
// Per-entry failures stop the pass so ordering is preserved across retries.
func (d *Drainer) DrainOnce(ctx context.Context) error {
	entries, err := d.repo.FetchUnpublished(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		task, opts, err := tasks.NewEventPublishTask(tasks.EventPublishPayload{
			Kind:      entry.Kind,
			AccountID: entry.AccountID,
			Event:     entry.Payload,
		})
		if err != nil {
			return err
		}
		if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
			return err
		}
		if err := d.repo.MarkPublished(ctx, entry.ID); err != nil {
			return err
		}
	}
	return nil
}
