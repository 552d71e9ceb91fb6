package invoiceRepo

import (
	"context"
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

// MongoInvoiceRepo implements InvoiceRepository using MongoDB.
type MongoInvoiceRepo struct {
	client    *mongo.Client
	invoices  *mongo.Collection
	items     *mongo.Collection
	callbacks *mongo.Collection
	counters  *mongo.Collection
	outbox    *mongo.Collection
}

// NewMongoInvoiceRepo creates a new InvoiceRepository instance.
func NewMongoInvoiceRepo() InvoiceRepository {
	db := database.DB()
	repo := &MongoInvoiceRepo{
		client:    database.MongoClient,
		invoices:  db.Collection("invoices"),
		items:     db.Collection("invoice_items"),
		callbacks: db.Collection("invoice_callbacks"),
		counters:  db.Collection("counters"),
		outbox:    db.Collection("outbox"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create invoice indexes: %v\n", err)
	}
	return repo
}

func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func (r *MongoInvoiceRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	invoiceIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "account_id", Value: 1}}},
	}
	if _, err := r.invoices.Indexes().CreateMany(ctx, invoiceIndexes); err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}

	itemIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
		{Keys: bson.D{{Key: "account_id", Value: 1}}},
	}
	if _, err := r.items.Indexes().CreateMany(ctx, itemIndexes); err != nil {
		return fmt.Errorf("failed to create invoice item indexes: %w", err)
	}
	return nil
}

func (r *MongoInvoiceRepo) nextSequence(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to advance %s counter: %w", name, err)
	}
	return doc.Seq, nil
}

// --- document types ---

type invoiceDoc struct {
	ID            string    `bson:"id"`
	AccountID     string    `bson:"account_id"`
	InvoiceNumber int64     `bson:"invoice_number"`
	Currency      string    `bson:"currency"`
	TargetDate    time.Time `bson:"target_date"`
	CreatedAt     time.Time `bson:"created_at"`
}

type invoiceItemDoc struct {
	ID             string               `bson:"id"`
	InvoiceID      string               `bson:"invoice_id"`
	AccountID      string               `bson:"account_id"`
	Type           string               `bson:"type"`
	SubscriptionID string               `bson:"subscription_id,omitempty"`
	UsageName      string               `bson:"usage_name,omitempty"`
	StartDate      time.Time            `bson:"start_date"`
	EndDate        *time.Time           `bson:"end_date,omitempty"`
	Amount         primitive.Decimal128 `bson:"amount"`
	Currency       string               `bson:"currency"`
	Description    string               `bson:"description,omitempty"`
}

type callbackDoc struct {
	AccountID      string    `bson:"account_id"`
	SubscriptionID string    `bson:"subscription_id"`
	CallbackAt     time.Time `bson:"callback_at"`
	CreatedAt      time.Time `bson:"created_at"`
}

func toInvoiceDoc(inv *models.Invoice) invoiceDoc {
	return invoiceDoc{
		ID:            inv.ID.String(),
		AccountID:     inv.AccountID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		Currency:      string(inv.Currency),
		TargetDate:    inv.TargetDate,
		CreatedAt:     inv.CreatedAt,
	}
}

func toInvoiceItemDoc(accountID uuid.UUID, item models.InvoiceItem) invoiceItemDoc {
	doc := invoiceItemDoc{
		ID:          item.ID.String(),
		InvoiceID:   item.InvoiceID.String(),
		AccountID:   accountID.String(),
		Type:        string(item.Type),
		UsageName:   item.UsageName,
		StartDate:   item.StartDate,
		EndDate:     item.EndDate,
		Amount:      database.ToDecimal128(item.Amount),
		Currency:    string(item.Currency),
		Description: item.Description,
	}
	if item.SubscriptionID != nil {
		doc.SubscriptionID = item.SubscriptionID.String()
	}
	return doc
}

func fromInvoiceItemDoc(doc invoiceItemDoc) (models.InvoiceItem, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return models.InvoiceItem{}, fmt.Errorf("bad item id %q: %w", doc.ID, err)
	}
	invoiceID, err := uuid.Parse(doc.InvoiceID)
	if err != nil {
		return models.InvoiceItem{}, fmt.Errorf("bad invoice id %q: %w", doc.InvoiceID, err)
	}
	amount, err := database.FromDecimal128(doc.Amount)
	if err != nil {
		return models.InvoiceItem{}, err
	}
	item := models.InvoiceItem{
		ID:          id,
		InvoiceID:   invoiceID,
		Type:        models.InvoiceItemType(doc.Type),
		UsageName:   doc.UsageName,
		StartDate:   doc.StartDate,
		EndDate:     doc.EndDate,
		Amount:      amount,
		Currency:    models.Currency(doc.Currency),
		Description: doc.Description,
	}
	if doc.SubscriptionID != "" {
		subID, err := uuid.Parse(doc.SubscriptionID)
		if err != nil {
			return models.InvoiceItem{}, fmt.Errorf("bad subscription id %q: %w", doc.SubscriptionID, err)
		}
		item.SubscriptionID = &subID
	}
	return item, nil
}

func fromInvoiceDoc(doc invoiceDoc, items []models.InvoiceItem) (*models.Invoice, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("bad invoice id %q: %w", doc.ID, err)
	}
	accountID, err := uuid.Parse(doc.AccountID)
	if err != nil {
		return nil, fmt.Errorf("bad account id %q: %w", doc.AccountID, err)
	}
	return &models.Invoice{
		ID:            id,
		AccountID:     accountID,
		InvoiceNumber: doc.InvoiceNumber,
		Currency:      models.Currency(doc.Currency),
		TargetDate:    doc.TargetDate,
		Items:         items,
		CreatedAt:     doc.CreatedAt,
	}, nil
}
