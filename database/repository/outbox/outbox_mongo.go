package outboxRepo

import (
	"context"
	"fmt"
	"time"

	"corebill/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOutboxRepo implements OutboxRepository using MongoDB.
type MongoOutboxRepo struct {
	coll *mongo.Collection
}

// NewMongoOutboxRepo creates a new OutboxRepository instance.
func NewMongoOutboxRepo() OutboxRepository {
	coll := database.DB().Collection(CollectionName)
	repo := &MongoOutboxRepo{coll: coll}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create outbox indexes: %v\n", err)
	}
	return repo
}

func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func (r *MongoOutboxRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "published", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoOutboxRepo) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]interface{}, len(entries))
	for i := range entries {
		docs[i] = entries[i]
	}
	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append outbox entries: %w", err)
	}
	return nil
}

func (r *MongoOutboxRepo) FetchUnpublished(ctx context.Context, limit int64) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(limit)
	cursor, err := r.coll.Find(ctx, bson.M{"published": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unpublished entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode outbox entries: %w", err)
	}
	return entries, nil
}

func (r *MongoOutboxRepo) MarkPublished(ctx context.Context, id interface{}) error {
	now := time.Now()
	update := bson.M{"$set": bson.M{"published": true, "published_at": now}}
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry published: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox entry %v not found", id)
	}
	return nil
}
