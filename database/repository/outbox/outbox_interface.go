package outboxRepo

import "context"

// OutboxRepository is the contract the event drainer and the bus work against.
type OutboxRepository interface {
	// Append durably stores events for later publication. Used by the bus for
	// posts that are not already covered by a repository transaction.
	Append(ctx context.Context, entries ...Entry) error
	// FetchUnpublished returns up to limit entries in insertion order.
	FetchUnpublished(ctx context.Context, limit int64) ([]Entry, error)
	// MarkPublished flags one entry as delivered.
	MarkPublished(ctx context.Context, id interface{}) error
}
