// File: database/repository/payment/paymentMongoQueries.go
package paymentRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"corebill/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *MongoPaymentRepo) findOnePayment(ctx context.Context, filter bson.M) (*models.Payment, error) {
	var doc paymentDoc
	err := r.payments.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return fromPaymentDoc(doc)
}

// GetPayment retrieves a payment header by its id.
func (r *MongoPaymentRepo) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.findOnePayment(ctx, bson.M{"id": id.String()})
}

// GetPaymentByExternalKey retrieves a payment header by its external key.
func (r *MongoPaymentRepo) GetPaymentByExternalKey(ctx context.Context, externalKey string) (*models.Payment, error) {
	return r.findOnePayment(ctx, bson.M{"external_key": externalKey})
}

// GetTransactionByExternalKey retrieves a single transaction by external key.
func (r *MongoPaymentRepo) GetTransactionByExternalKey(ctx context.Context, externalKey string) (*models.Transaction, error) {
	var doc transactionDoc
	err := r.txns.FindOne(ctx, bson.M{"external_key": externalKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return fromTransactionDoc(doc)
}

func (r *MongoPaymentRepo) findPayments(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.Payment, error) {
	cursor, err := r.payments.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []paymentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	payments := make([]models.Payment, 0, len(docs))
	for _, doc := range docs {
		p, err := fromPaymentDoc(doc)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, nil
}

func (r *MongoPaymentRepo) findTransactions(ctx context.Context, filter bson.M) ([]models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "effective_date", Value: 1}})
	cursor, err := r.txns.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []transactionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	txns := make([]models.Transaction, 0, len(docs))
	for _, doc := range docs {
		t, err := fromTransactionDoc(doc)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, nil
}

// GetPaymentsForAccount lists all payment headers for an account.
func (r *MongoPaymentRepo) GetPaymentsForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Payment, error) {
	return r.findPayments(ctx, bson.M{"account_id": accountID.String()})
}

// GetTransactionsForAccount lists all transactions for an account.
func (r *MongoPaymentRepo) GetTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	return r.findTransactions(ctx, bson.M{"account_id": accountID.String()})
}

// GetTransactionsForPayment lists the transactions of one payment.
func (r *MongoPaymentRepo) GetTransactionsForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Transaction, error) {
	return r.findTransactions(ctx, bson.M{"payment_id": paymentID.String()})
}

// GetPayments returns one offset/limit window over all payments plus the total count.
func (r *MongoPaymentRepo) GetPayments(ctx context.Context, offset, limit int64) ([]models.Payment, int64, error) {
	ctxCount, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	total, err := r.payments.CountDocuments(ctxCount, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "payment_number", Value: 1}}).
		SetSkip(offset).
		SetLimit(limit)
	payments, err := r.findPayments(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
