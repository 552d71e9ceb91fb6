package paymentRepo

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

// MongoPaymentRepo implements PaymentRepository using MongoDB.
type MongoPaymentRepo struct {
	client   *mongo.Client
	payments *mongo.Collection
	txns     *mongo.Collection
	counters *mongo.Collection
	outbox   *mongo.Collection
}

// NewMongoPaymentRepo creates a new PaymentRepository instance.
func NewMongoPaymentRepo() PaymentRepository {
	db := database.DB()
	repo := &MongoPaymentRepo{
		client:   database.MongoClient,
		payments: db.Collection("payments"),
		txns:     db.Collection("payment_transactions"),
		counters: db.Collection("counters"),
		outbox:   db.Collection("outbox"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create payment indexes: %v\n", err)
	}
	return repo
}

// newContext creates a context with the given timeout.
func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func (r *MongoPaymentRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	paymentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "external_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "account_id", Value: 1}}},
	}
	if _, err := r.payments.Indexes().CreateMany(ctx, paymentIndexes); err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}

	txnIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "external_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "payment_id", Value: 1}}},
		{Keys: bson.D{{Key: "account_id", Value: 1}}},
	}
	if _, err := r.txns.Indexes().CreateMany(ctx, txnIndexes); err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}
	return nil
}

// nextSequence increments and returns a named counter (payment numbers).
func (r *MongoPaymentRepo) nextSequence(ctx context.Context, name string) (int64, error) {
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

type paymentDoc struct {
	ID              string    `bson:"id"`
	AccountID       string    `bson:"account_id"`
	PaymentMethodID string    `bson:"payment_method_id,omitempty"`
	PaymentNumber   int64     `bson:"payment_number"`
	ExternalKey     string    `bson:"external_key"`
	StateName       string    `bson:"state_name"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

type transactionDoc struct {
	ID                string               `bson:"id"`
	PaymentID         string               `bson:"payment_id"`
	AccountID         string               `bson:"account_id"`
	ExternalKey       string               `bson:"external_key"`
	Type              string               `bson:"type"`
	Status            string               `bson:"status"`
	Amount            primitive.Decimal128 `bson:"amount"`
	Currency          string               `bson:"currency"`
	ProcessedAmount   primitive.Decimal128 `bson:"processed_amount"`
	ProcessedCurrency string               `bson:"processed_currency,omitempty"`
	GatewayErrorCode  string               `bson:"gateway_error_code,omitempty"`
	GatewayErrorMsg   string               `bson:"gateway_error_msg,omitempty"`
	EffectiveDate     time.Time            `bson:"effective_date"`
	CreatedAt         time.Time            `bson:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at"`
}

func toPaymentDoc(p *models.Payment) paymentDoc {
	doc := paymentDoc{
		ID:            p.ID.String(),
		AccountID:     p.AccountID.String(),
		PaymentNumber: p.PaymentNumber,
		ExternalKey:   p.ExternalKey,
		StateName:     p.StateName,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.PaymentMethodID != nil {
		doc.PaymentMethodID = p.PaymentMethodID.String()
	}
	return doc
}

func fromPaymentDoc(doc paymentDoc) (*models.Payment, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("bad payment id %q: %w", doc.ID, err)
	}
	accountID, err := uuid.Parse(doc.AccountID)
	if err != nil {
		return nil, fmt.Errorf("bad account id %q: %w", doc.AccountID, err)
	}
	p := &models.Payment{
		ID:            id,
		AccountID:     accountID,
		PaymentNumber: doc.PaymentNumber,
		ExternalKey:   doc.ExternalKey,
		StateName:     doc.StateName,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.PaymentMethodID != "" {
		pmID, err := uuid.Parse(doc.PaymentMethodID)
		if err != nil {
			return nil, fmt.Errorf("bad payment method id %q: %w", doc.PaymentMethodID, err)
		}
		p.PaymentMethodID = &pmID
	}
	return p, nil
}

func toTransactionDoc(accountID uuid.UUID, t *models.Transaction) transactionDoc {
	return transactionDoc{
		ID:                t.ID.String(),
		PaymentID:         t.PaymentID.String(),
		AccountID:         accountID.String(),
		ExternalKey:       t.ExternalKey,
		Type:              string(t.Type),
		Status:            string(t.Status),
		Amount:            database.ToDecimal128(t.Amount),
		Currency:          string(t.Currency),
		ProcessedAmount:   database.ToDecimal128(t.ProcessedAmount),
		ProcessedCurrency: string(t.ProcessedCurrency),
		GatewayErrorCode:  t.GatewayErrorCode,
		GatewayErrorMsg:   t.GatewayErrorMsg,
		EffectiveDate:     t.EffectiveDate,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func fromTransactionDoc(doc transactionDoc) (*models.Transaction, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("bad transaction id %q: %w", doc.ID, err)
	}
	paymentID, err := uuid.Parse(doc.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("bad payment id %q: %w", doc.PaymentID, err)
	}
	amount, err := database.FromDecimal128(doc.Amount)
	if err != nil {
		return nil, err
	}
	processed, err := database.FromDecimal128(doc.ProcessedAmount)
	if err != nil {
		return nil, err
	}
	return &models.Transaction{
		ID:                id,
		PaymentID:         paymentID,
		ExternalKey:       doc.ExternalKey,
		Type:              models.TransactionType(doc.Type),
		Status:            models.TransactionStatus(doc.Status),
		Amount:            amount,
		Currency:          models.Currency(doc.Currency),
		ProcessedAmount:   processed,
		ProcessedCurrency: models.Currency(doc.ProcessedCurrency),
		GatewayErrorCode:  doc.GatewayErrorCode,
		GatewayErrorMsg:   doc.GatewayErrorMsg,
		EffectiveDate:     doc.EffectiveDate,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}, nil
}
