package subscriptionRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"corebill/database"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a subscription lookup misses.
var ErrNotFound = errors.New("subscription not found")

// SubscriptionRepository resolves subscription ownership and tracks how far
// each subscription has been billed.
type SubscriptionRepository interface {
	AccountForSubscription(ctx context.Context, subscriptionID uuid.UUID) (uuid.UUID, error)
	UpdateChargedThrough(ctx context.Context, subscriptionID uuid.UUID, chargedThrough time.Time) error
}

// MongoSubscriptionRepo implements SubscriptionRepository using MongoDB.
type MongoSubscriptionRepo struct {
	subscriptions *mongo.Collection
}

// NewMongoSubscriptionRepo creates a new SubscriptionRepository instance.
func NewMongoSubscriptionRepo() SubscriptionRepository {
	repo := &MongoSubscriptionRepo{
		subscriptions: database.DB().Collection("subscriptions"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create subscription indexes: %v\n", err)
	}
	return repo
}

func (r *MongoSubscriptionRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "account_id", Value: 1}}},
	}
	if _, err := r.subscriptions.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create subscription indexes: %w", err)
	}
	return nil
}

// AccountForSubscription resolves the owning account of a subscription.
func (r *MongoSubscriptionRepo) AccountForSubscription(ctx context.Context, subscriptionID uuid.UUID) (uuid.UUID, error) {
	var doc struct {
		AccountID string `bson:"account_id"`
	}
	err := r.subscriptions.FindOne(ctx, bson.M{"id": subscriptionID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	accountID, err := uuid.Parse(doc.AccountID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad account id %q: %w", doc.AccountID, err)
	}
	return accountID, nil
}

// UpdateChargedThrough advances a subscription's charged-through date. The
// date never moves backwards.
func (r *MongoSubscriptionRepo) UpdateChargedThrough(ctx context.Context, subscriptionID uuid.UUID, chargedThrough time.Time) error {
	update := bson.M{
		"$max": bson.M{"charged_through": chargedThrough},
		"$set": bson.M{"updated_at": time.Now()},
	}
	result, err := r.subscriptions.UpdateOne(ctx, bson.M{"id": subscriptionID.String()}, update)
	if err != nil {
		return fmt.Errorf("failed to update charged-through for %s: %w", subscriptionID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, subscriptionID)
	}
	return nil
}
