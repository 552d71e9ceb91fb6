package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event kinds carried on the bus / outbox.
const (
	EventPaymentInfo        = "payment.info"
	EventPaymentError       = "payment.error"
	EventPaymentPluginError = "payment.plugin_error"
	EventInvoiceCreation    = "invoice.creation"
	EventInvoiceAdjustment  = "invoice.adjustment"
	EventNullInvoice        = "invoice.null"
)

// BusEvent is a domain event destined for the event bus.
type BusEvent interface {
	Kind() string
	Account() uuid.UUID
}

// EventMetadata is the tenant/token envelope every event carries.
type EventMetadata struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	UserToken uuid.UUID `json:"user_token"`
}

// MetadataFrom builds the event envelope from an internal call context.
func MetadataFrom(ctx InternalCallContext) EventMetadata {
	return EventMetadata{TenantID: ctx.TenantID, UserToken: ctx.UserToken}
}

// PaymentInfoEvent reports a successful or still-pending transaction.
type PaymentInfoEvent struct {
	AccountID     uuid.UUID         `json:"account_id"`
	PaymentID     uuid.UUID         `json:"payment_id"`
	Amount        decimal.Decimal   `json:"amount"`
	PaymentNumber int64             `json:"payment_number"`
	Status        TransactionStatus `json:"status"`
	EffectiveDate time.Time         `json:"effective_date"`
	Metadata      EventMetadata     `json:"metadata"`
}

func (e PaymentInfoEvent) Kind() string       { return EventPaymentInfo }
func (e PaymentInfoEvent) Account() uuid.UUID { return e.AccountID }

// PaymentErrorEvent reports a gateway-declined transaction.
type PaymentErrorEvent struct {
	AccountID uuid.UUID     `json:"account_id"`
	PaymentID uuid.UUID     `json:"payment_id"`
	Message   string        `json:"message,omitempty"`
	Metadata  EventMetadata `json:"metadata"`
}

func (e PaymentErrorEvent) Kind() string       { return EventPaymentError }
func (e PaymentErrorEvent) Account() uuid.UUID { return e.AccountID }

// PaymentPluginErrorEvent reports a transaction aborted by a plugin failure.
type PaymentPluginErrorEvent struct {
	AccountID uuid.UUID     `json:"account_id"`
	PaymentID uuid.UUID     `json:"payment_id"`
	Message   string        `json:"message,omitempty"`
	Metadata  EventMetadata `json:"metadata"`
}

func (e PaymentPluginErrorEvent) Kind() string       { return EventPaymentPluginError }
func (e PaymentPluginErrorEvent) Account() uuid.UUID { return e.AccountID }

// InvoiceCreationEvent announces a freshly persisted invoice with its own items.
type InvoiceCreationEvent struct {
	InvoiceID uuid.UUID       `json:"invoice_id"`
	AccountID uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  Currency        `json:"currency"`
	Metadata  EventMetadata   `json:"metadata"`
}

func (e InvoiceCreationEvent) Kind() string       { return EventInvoiceCreation }
func (e InvoiceCreationEvent) Account() uuid.UUID { return e.AccountID }

// InvoiceAdjustmentEvent announces that a prior invoice received adjustment items.
type InvoiceAdjustmentEvent struct {
	InvoiceID uuid.UUID     `json:"invoice_id"` // the adjusted (foreign) invoice
	AccountID uuid.UUID     `json:"account_id"`
	Metadata  EventMetadata `json:"metadata"`
}

func (e InvoiceAdjustmentEvent) Kind() string       { return EventInvoiceAdjustment }
func (e InvoiceAdjustmentEvent) Account() uuid.UUID { return e.AccountID }

// NullInvoiceEvent records that a dispatch cycle produced nothing to bill.
type NullInvoiceEvent struct {
	AccountID     uuid.UUID     `json:"account_id"`
	ProcessedDate time.Time     `json:"processed_date"`
	Metadata      EventMetadata `json:"metadata"`
}

func (e NullInvoiceEvent) Kind() string       { return EventNullInvoice }
func (e NullInvoiceEvent) Account() uuid.UUID { return e.AccountID }
