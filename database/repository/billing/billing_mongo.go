package billingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"corebill/database"
	"corebill/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBillingEventRepo reads the billing event sets the subscription side
// computes and writes per account. It implements the dispatcher's billing
// event source.
type MongoBillingEventRepo struct {
	sets *mongo.Collection
}

// NewMongoBillingEventRepo creates a new billing event source instance.
func NewMongoBillingEventRepo() *MongoBillingEventRepo {
	repo := &MongoBillingEventRepo{
		sets: database.DB().Collection("billing_event_sets"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create billing event indexes: %v\n", err)
	}
	return repo
}

func (r *MongoBillingEventRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "account_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := r.sets.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create billing event indexes: %w", err)
	}
	return nil
}

type billingEventDoc struct {
	SubscriptionID string               `bson:"subscription_id"`
	Type           string               `bson:"type"`
	UsageName      string               `bson:"usage_name,omitempty"`
	Amount         primitive.Decimal128 `bson:"amount"`
	StartDate      time.Time            `bson:"start_date"`
	EndDate        *time.Time           `bson:"end_date,omitempty"`
	Description    string               `bson:"description,omitempty"`
}

type billingEventSetDoc struct {
	AccountID      string                  `bson:"account_id"`
	AutoInvoiceOff bool                    `bson:"auto_invoice_off"`
	Usages         map[string]models.Usage `bson:"usages,omitempty"`
	Events         []billingEventDoc       `bson:"events"`
}

// EventsForAccount returns the account's billing event set. An account with
// no persisted set has nothing to bill: the result is an empty set.
func (r *MongoBillingEventRepo) EventsForAccount(ctx context.Context, accountID uuid.UUID, dryRun *models.DryRunArguments) (*models.BillingEventSet, error) {
	var doc billingEventSetDoc
	err := r.sets.FindOne(ctx, bson.M{"account_id": accountID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.BillingEventSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load billing events: %w", err)
	}

	set := &models.BillingEventSet{
		AutoInvoiceOff: doc.AutoInvoiceOff,
		Usages:         doc.Usages,
	}
	for _, ev := range doc.Events {
		subscriptionID, err := uuid.Parse(ev.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("bad subscription id %q: %w", ev.SubscriptionID, err)
		}
		if dryRun != nil && dryRun.TargetSubscriptionID != nil && *dryRun.TargetSubscriptionID != subscriptionID {
			continue
		}
		amount, err := database.FromDecimal128(ev.Amount)
		if err != nil {
			return nil, err
		}
		set.Events = append(set.Events, models.BillingEvent{
			SubscriptionID: subscriptionID,
			Type:           models.InvoiceItemType(ev.Type),
			UsageName:      ev.UsageName,
			Amount:         amount,
			StartDate:      ev.StartDate,
			EndDate:        ev.EndDate,
			Description:    ev.Description,
		})
	}
	return set, nil
}

// ReplaceEvents overwrites the account's billing event set. Used by the
// subscription side when it recomputes an account.
func (r *MongoBillingEventRepo) ReplaceEvents(ctx context.Context, accountID uuid.UUID, set *models.BillingEventSet) error {
	doc := billingEventSetDoc{
		AccountID:      accountID.String(),
		AutoInvoiceOff: set.AutoInvoiceOff,
		Usages:         set.Usages,
		Events:         make([]billingEventDoc, 0, len(set.Events)),
	}
	for _, ev := range set.Events {
		doc.Events = append(doc.Events, billingEventDoc{
			SubscriptionID: ev.SubscriptionID.String(),
			Type:           string(ev.Type),
			UsageName:      ev.UsageName,
			Amount:         database.ToDecimal128(ev.Amount),
			StartDate:      ev.StartDate,
			EndDate:        ev.EndDate,
			Description:    ev.Description,
		})
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.sets.ReplaceOne(ctx, bson.M{"account_id": accountID.String()}, doc, opts); err != nil {
		return fmt.Errorf("failed to replace billing events for %s: %w", accountID, err)
	}
	return nil
}
