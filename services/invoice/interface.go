package invoice

import (
	"context"
	"time"

	"corebill/models"

	"github.com/google/uuid"
)

// Generator produces a new invoice (or nil when there is nothing to bill)
// from the billing events and the already-persisted invoices. The line-item
// algorithm itself lives behind this contract.
type Generator interface {
	Generate(ctx context.Context, accountID uuid.UUID, events *models.BillingEventSet, existing []models.Invoice, targetDate time.Time, currency models.Currency) (*models.Invoice, error)
}

// Plugin contributes additional items (tax and the like) to a freshly
// generated invoice before it is persisted.
type Plugin interface {
	Name() string
	AdditionalItems(ctx context.Context, invoice *models.Invoice) ([]models.InvoiceItem, error)
}

// BillingEventSource supplies the ordered, immutable billing event set for an
// account. May trigger an account-level recompute on the way.
type BillingEventSource interface {
	EventsForAccount(ctx context.Context, accountID uuid.UUID, dryRun *models.DryRunArguments) (*models.BillingEventSet, error)
}

// AccountSource resolves billing accounts.
type AccountSource interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// SubscriptionService is the subscription-side collaborator: resolving the
// owning account of a subscription and advancing charged-through dates after
// an invoice run.
type SubscriptionService interface {
	AccountForSubscription(ctx context.Context, subscriptionID uuid.UUID) (uuid.UUID, error)
	UpdateChargedThrough(ctx context.Context, subscriptionID uuid.UUID, chargedThrough time.Time) error
}

// Notifier tells the account owner about a freshly persisted invoice.
type Notifier interface {
	Notify(ctx context.Context, account *models.Account, invoice *models.Invoice, callCtx models.InternalCallContext) error
}

// Scheduler queues a future invoice dispatch for an account.
type Scheduler interface {
	ScheduleInvoiceRun(ctx context.Context, accountID uuid.UUID, at time.Time) error
}
