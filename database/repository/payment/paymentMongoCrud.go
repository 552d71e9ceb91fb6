// File: database/repository/payment/paymentMongoCrud.go
package paymentRepo

import (
	"context"
	"fmt"
	"time"

	"corebill/database"
	outboxRepo "corebill/database/repository/outbox"
	"corebill/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// withTransaction runs fn inside a mongo session transaction.
func (r *MongoPaymentRepo) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// appendOutbox writes bus events to the outbox inside the current transaction.
func (r *MongoPaymentRepo) appendOutbox(sc mongo.SessionContext, events []models.BusEvent, now time.Time) error {
	if len(events) == 0 {
		return nil
	}
	entries, err := outboxRepo.NewEntries(events, now)
	if err != nil {
		return err
	}
	docs := make([]interface{}, len(entries))
	for i := range entries {
		docs[i] = entries[i]
	}
	if _, err := r.outbox.InsertMany(sc, docs); err != nil {
		return fmt.Errorf("failed to append outbox entries: %w", err)
	}
	return nil
}

// CreatePaymentWithTransaction inserts a new payment and its first transaction,
// assigning the payment number from the shared counter.
func (r *MongoPaymentRepo) CreatePaymentWithTransaction(ctx context.Context, payment *models.Payment, txn *models.Transaction) error {
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	txn.CreatedAt = now
	txn.UpdatedAt = now

	seq, err := r.nextSequence(ctx, "payment_number")
	if err != nil {
		return err
	}
	payment.PaymentNumber = seq

	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := r.payments.InsertOne(sc, toPaymentDoc(payment)); err != nil {
			return fmt.Errorf("failed to create payment %s: %w", payment.ID, err)
		}
		if _, err := r.txns.InsertOne(sc, toTransactionDoc(payment.AccountID, txn)); err != nil {
			return fmt.Errorf("failed to create transaction %s: %w", txn.ID, err)
		}
		return nil
	})
}

// AddTransaction appends a transaction to an existing payment.
func (r *MongoPaymentRepo) AddTransaction(ctx context.Context, accountID uuid.UUID, txn *models.Transaction) error {
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	if _, err := r.txns.InsertOne(ctx, toTransactionDoc(accountID, txn)); err != nil {
		return fmt.Errorf("failed to add transaction %s: %w", txn.ID, err)
	}
	return nil
}

// UpdateOnCompletion resolves a PENDING transaction and moves the payment to
// its new state in one transactional unit. The PENDING filter enforces that a
// resolved transaction never reverts.
func (r *MongoPaymentRepo) UpdateOnCompletion(ctx context.Context, update CompletionUpdate, events ...models.BusEvent) error {
	now := time.Now()

	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		txnFilter := bson.M{
			"id":     update.TransactionID.String(),
			"status": string(models.TransactionPending),
		}
		txnUpdate := bson.M{"$set": bson.M{
			"status":             string(update.Status),
			"processed_amount":   database.ToDecimal128(update.ProcessedAmount),
			"processed_currency": string(update.ProcessedCurrency),
			"gateway_error_code": update.GatewayErrorCode,
			"gateway_error_msg":  update.GatewayErrorMsg,
			"updated_at":         now,
		}}
		result, err := r.txns.UpdateOne(sc, txnFilter, txnUpdate)
		if err != nil {
			return fmt.Errorf("failed to resolve transaction %s: %w", update.TransactionID, err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("%w: pending transaction %s", ErrNotFound, update.TransactionID)
		}

		paymentUpdate := bson.M{"$set": bson.M{
			"state_name": update.StateName,
			"updated_at": now,
		}}
		result, err = r.payments.UpdateOne(sc, bson.M{"id": update.PaymentID.String()}, paymentUpdate)
		if err != nil {
			return fmt.Errorf("failed to update payment %s: %w", update.PaymentID, err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("%w: payment %s", ErrNotFound, update.PaymentID)
		}

		return r.appendOutbox(sc, events, now)
	})
}

// ApplyChargeback appends an already-resolved chargeback transaction and
// updates the payment state in a single transactional unit.
func (r *MongoPaymentRepo) ApplyChargeback(ctx context.Context, accountID uuid.UUID, stateName string, txn *models.Transaction, events ...models.BusEvent) error {
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := r.txns.InsertOne(sc, toTransactionDoc(accountID, txn)); err != nil {
			return fmt.Errorf("failed to insert chargeback transaction %s: %w", txn.ID, err)
		}
		paymentUpdate := bson.M{"$set": bson.M{
			"state_name": stateName,
			"updated_at": now,
		}}
		result, err := r.payments.UpdateOne(sc, bson.M{"id": txn.PaymentID.String()}, paymentUpdate)
		if err != nil {
			return fmt.Errorf("failed to update payment %s: %w", txn.PaymentID, err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("%w: payment %s", ErrNotFound, txn.PaymentID)
		}
		return r.appendOutbox(sc, events, now)
	})
}
