package outboxRepo

import (
	"encoding/json"
	"fmt"
	"time"

	"corebill/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CollectionName is the outbox collection. Repositories that need to persist
// events atomically with a state change write entries here inside their own
// session transaction.
const CollectionName = "outbox"

// Entry is one durable, not-yet-published domain event.
type Entry struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Kind        string             `bson:"kind"`
	AccountID   string             `bson:"account_id"`
	Payload     []byte             `bson:"payload"`
	CreatedAt   time.Time          `bson:"created_at"`
	Published   bool               `bson:"published"`
	PublishedAt *time.Time         `bson:"published_at,omitempty"`
}

// NewEntry wraps a bus event into an outbox entry.
func NewEntry(event models.BusEvent, now time.Time) (Entry, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal %s event: %w", event.Kind(), err)
	}
	return Entry{
		Kind:      event.Kind(),
		AccountID: event.Account().String(),
		Payload:   payload,
		CreatedAt: now,
		Published: false,
	}, nil
}

// NewEntries wraps a batch of bus events.
func NewEntries(events []models.BusEvent, now time.Time) ([]Entry, error) {
	entries := make([]Entry, 0, len(events))
	for _, ev := range events {
		entry, err := NewEntry(ev, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
