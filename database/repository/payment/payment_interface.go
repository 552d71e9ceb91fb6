package paymentRepo

import (
	"context"
	"errors"

	"corebill/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a payment or transaction lookup misses.
var ErrNotFound = errors.New("payment record not found")

// CompletionUpdate carries everything persisted atomically when a transaction
// resolves: the payment's new state name plus the transaction outcome fields.
type CompletionUpdate struct {
	PaymentID         uuid.UUID
	StateName         string
	TransactionID     uuid.UUID
	Status            models.TransactionStatus
	ProcessedAmount   decimal.Decimal
	ProcessedCurrency models.Currency
	GatewayErrorCode  string
	GatewayErrorMsg   string
}

// PaymentRepository is the persistence contract for payments and their
// transactions. Multi-document writes run in a single session transaction,
// with any supplied bus events appended to the outbox in the same unit.
type PaymentRepository interface {
	// CreatePaymentWithTransaction inserts a new payment (assigning its
	// monotonic payment number) together with its first transaction.
	CreatePaymentWithTransaction(ctx context.Context, payment *models.Payment, txn *models.Transaction) error

	// AddTransaction appends a transaction to an existing payment.
	AddTransaction(ctx context.Context, accountID uuid.UUID, txn *models.Transaction) error

	// UpdateOnCompletion resolves a PENDING transaction and moves the owning
	// payment to its new state. Fails with ErrNotFound if the transaction does
	// not exist or is already resolved (resolved transactions never revert).
	UpdateOnCompletion(ctx context.Context, update CompletionUpdate, events ...models.BusEvent) error

	// ApplyChargeback appends an already-resolved chargeback transaction and
	// updates the payment state in one transactional unit.
	ApplyChargeback(ctx context.Context, accountID uuid.UUID, stateName string, txn *models.Transaction, events ...models.BusEvent) error

	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetPaymentByExternalKey(ctx context.Context, externalKey string) (*models.Payment, error)
	GetTransactionByExternalKey(ctx context.Context, externalKey string) (*models.Transaction, error)
	GetPaymentsForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Payment, error)
	GetTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error)
	GetTransactionsForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Transaction, error)

	// GetPayments returns one offset/limit window over all payments, newest
	// first, along with the total count.
	GetPayments(ctx context.Context, offset, limit int64) ([]models.Payment, int64, error)
}
