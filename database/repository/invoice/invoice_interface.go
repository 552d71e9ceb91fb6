package invoiceRepo

import (
	"context"
	"errors"
	"time"

	"corebill/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an invoice lookup misses.
var ErrNotFound = errors.New("invoice not found")

// InvoiceRepository is the persistence contract for invoices, their items,
// future callback dates and the bus events describing the write — all
// persisted in one transactional unit.
type InvoiceRepository interface {
	// CreateInvoice persists the invoice (assigning its invoice number when it
	// carries its own items), every generated item, the per-subscription
	// future callback dates and the supplied bus events in one transaction.
	CreateInvoice(ctx context.Context, invoice *models.Invoice, callbackDates map[uuid.UUID][]time.Time, isRealInvoice bool, events []models.BusEvent) error

	// GetByID re-reads a persisted invoice with its items, including
	// adjustment items appended by later runs.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)

	// GetInvoicesByAccount lists all persisted invoices with their items.
	GetInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Invoice, error)

	// ComputeCBA derives the credit-balance-adjustment item for the invoice
	// being built, against the account's persisted credit. Nil when no
	// adjustment applies.
	ComputeCBA(ctx context.Context, invoice *models.Invoice) (*models.InvoiceItem, error)
}
