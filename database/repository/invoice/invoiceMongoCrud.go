// File: database/repository/invoice/invoiceMongoCrud.go
package invoiceRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	outboxRepo "corebill/database/repository/outbox"
	"corebill/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// withTransaction runs fn inside a mongo session transaction.
func (r *MongoInvoiceRepo) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
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
func (r *MongoInvoiceRepo) appendOutbox(sc mongo.SessionContext, events []models.BusEvent, now time.Time) error {
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

// CreateInvoice persists the invoice, its items, the future callback dates and
// the bus events in one transactional unit. When the invoice carries items of
// its own it is a real invoice and gets the next invoice number; otherwise
// only adjustment items targeting existing invoices are written.
func (r *MongoInvoiceRepo) CreateInvoice(ctx context.Context, invoice *models.Invoice, callbackDates map[uuid.UUID][]time.Time, isRealInvoice bool, events []models.BusEvent) error {
	now := time.Now()
	invoice.CreatedAt = now

	if isRealInvoice {
		seq, err := r.nextSequence(ctx, "invoice_number")
		if err != nil {
			return err
		}
		invoice.InvoiceNumber = seq
	}

	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if isRealInvoice {
			if _, err := r.invoices.InsertOne(sc, toInvoiceDoc(invoice)); err != nil {
				return fmt.Errorf("failed to create invoice %s: %w", invoice.ID, err)
			}
		}

		if len(invoice.Items) > 0 {
			docs := make([]interface{}, len(invoice.Items))
			for i, item := range invoice.Items {
				docs[i] = toInvoiceItemDoc(invoice.AccountID, item)
			}
			if _, err := r.items.InsertMany(sc, docs); err != nil {
				return fmt.Errorf("failed to create invoice items: %w", err)
			}
		}

		for subscriptionID, dates := range callbackDates {
			for _, at := range dates {
				doc := callbackDoc{
					AccountID:      invoice.AccountID.String(),
					SubscriptionID: subscriptionID.String(),
					CallbackAt:     at,
					CreatedAt:      now,
				}
				if _, err := r.callbacks.InsertOne(sc, doc); err != nil {
					return fmt.Errorf("failed to record callback for subscription %s: %w", subscriptionID, err)
				}
			}
		}

		return r.appendOutbox(sc, events, now)
	})
}

func (r *MongoInvoiceRepo) itemsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error) {
	cursor, err := r.items.Find(ctx, bson.M{"invoice_id": invoiceID.String()},
		options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice items: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []invoiceItemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode invoice items: %w", err)
	}
	items := make([]models.InvoiceItem, 0, len(docs))
	for _, doc := range docs {
		item, err := fromInvoiceItemDoc(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// GetByID re-reads a persisted invoice with its items, adjustment items from
// later runs included.
func (r *MongoInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var doc invoiceDoc
	err := r.invoices.FindOne(ctx, bson.M{"id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}

	items, err := r.itemsForInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromInvoiceDoc(doc, items)
}

// GetInvoicesByAccount lists all persisted invoices for an account with
// their items.
func (r *MongoInvoiceRepo) GetInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Invoice, error) {
	cursor, err := r.invoices.Find(ctx, bson.M{"account_id": accountID.String()},
		options.Find().SetSort(bson.D{{Key: "invoice_number", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []invoiceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}

	invoices := make([]models.Invoice, 0, len(docs))
	for _, doc := range docs {
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("bad invoice id %q: %w", doc.ID, err)
		}
		items, err := r.itemsForInvoice(ctx, id)
		if err != nil {
			return nil, err
		}
		inv, err := fromInvoiceDoc(doc, items)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, nil
}

// accountCredit sums the credit-balance-adjustment items across all persisted
// invoices of the account. A positive result is credit the account can spend.
func (r *MongoInvoiceRepo) accountCredit(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	cursor, err := r.items.Find(ctx, bson.M{
		"account_id": accountID.String(),
		"type":       string(models.ItemCBA),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list credit items: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []invoiceItemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode credit items: %w", err)
	}

	credit := decimal.Zero
	for _, doc := range docs {
		item, err := fromInvoiceItemDoc(doc)
		if err != nil {
			return decimal.Zero, err
		}
		credit = credit.Add(item.Amount)
	}
	return credit, nil
}

// ComputeCBA derives the credit-balance-adjustment item for the invoice being
// built. A negative invoice balance generates credit on the invoice itself; a
// positive balance consumes whatever persisted credit the account holds. Nil
// when neither applies.
func (r *MongoInvoiceRepo) ComputeCBA(ctx context.Context, invoice *models.Invoice) (*models.InvoiceItem, error) {
	balance := invoice.Balance()

	var amount decimal.Decimal
	switch {
	case balance.IsNegative():
		amount = balance.Neg()
	case balance.IsPositive():
		credit, err := r.accountCredit(ctx, invoice.AccountID)
		if err != nil {
			return nil, err
		}
		if !credit.IsPositive() {
			return nil, nil
		}
		amount = decimal.Min(balance, credit).Neg()
	default:
		return nil, nil
	}

	return &models.InvoiceItem{
		ID:          uuid.New(),
		InvoiceID:   invoice.ID,
		Type:        models.ItemCBA,
		StartDate:   invoice.TargetDate,
		Amount:      amount,
		Currency:    invoice.Currency,
		Description: "Adjustment (account credit)",
	}, nil
}
