// File: services/outbox/bus.go
package outbox

import (
	"context"

	outboxRepo "corebill/database/repository/outbox"
	"corebill/models"
	"corebill/utils"
)

// EventBus posts domain events. The default implementation is durable: Post
// appends to the outbox and the drainer delivers later, so a transport outage
// never loses an event.
type EventBus interface {
	Post(ctx context.Context, event models.BusEvent) error
}

// OutboxBus persists events to the outbox collection. Events written by
// repositories inside their own transactions bypass Post and land in the same
// collection directly.
type OutboxBus struct {
	repo  outboxRepo.OutboxRepository
	clock utils.Clock
}

func NewOutboxBus(repo outboxRepo.OutboxRepository, clock utils.Clock) *OutboxBus {
	return &OutboxBus{repo: repo, clock: clock}
}

func (b *OutboxBus) Post(ctx context.Context, event models.BusEvent) error {
	entry, err := outboxRepo.NewEntry(event, b.clock.Now())
	if err != nil {
		return err
	}
	return b.repo.Append(ctx, entry)
}
