// File: services/invoice/generator.go
package invoice

import (
	"context"
	"time"

	"corebill/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// billedKey identifies one already-invoiced charge so it is never billed twice.
type billedKey struct {
	subscriptionID uuid.UUID
	itemType       models.InvoiceItemType
	usageName      string
	startDate      int64
}

// DefaultGenerator turns billing events into invoice items, skipping charges
// already covered by persisted invoices. It bills every event whose start date
// falls on or before the target date.
type DefaultGenerator struct {
	log *zap.Logger
}

func NewDefaultGenerator(log *zap.Logger) *DefaultGenerator {
	return &DefaultGenerator{log: log}
}

func (g *DefaultGenerator) Generate(ctx context.Context, accountID uuid.UUID, events *models.BillingEventSet, existing []models.Invoice, targetDate time.Time, currency models.Currency) (*models.Invoice, error) {
	billed := make(map[billedKey]bool)
	for _, inv := range existing {
		for _, item := range inv.Items {
			if item.SubscriptionID == nil {
				continue
			}
			billed[keyFor(*item.SubscriptionID, item.Type, item.UsageName, item.StartDate)] = true
		}
	}

	inv := &models.Invoice{
		ID:         uuid.New(),
		AccountID:  accountID,
		Currency:   currency,
		TargetDate: targetDate,
	}

	for _, event := range events.Events {
		if event.StartDate.After(targetDate) {
			continue
		}
		if billed[keyFor(event.SubscriptionID, event.Type, event.UsageName, event.StartDate)] {
			continue
		}
		subscriptionID := event.SubscriptionID
		inv.AddItem(models.InvoiceItem{
			ID:             uuid.New(),
			InvoiceID:      inv.ID,
			Type:           event.Type,
			SubscriptionID: &subscriptionID,
			UsageName:      event.UsageName,
			StartDate:      event.StartDate,
			EndDate:        event.EndDate,
			Amount:         event.Amount,
			Currency:       currency,
			Description:    event.Description,
		})
	}

	if len(inv.Items) == 0 {
		g.log.Debug("no new charges for account", zap.String("accountID", accountID.String()))
		return nil, nil
	}
	return inv, nil
}

func keyFor(subscriptionID uuid.UUID, itemType models.InvoiceItemType, usageName string, start time.Time) billedKey {
	return billedKey{
		subscriptionID: subscriptionID,
		itemType:       itemType,
		usageName:      usageName,
		startDate:      start.UTC().Unix(),
	}
}
