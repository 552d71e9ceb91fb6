package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is one gateway-facing attempt kind within a payment lifecycle.
type TransactionType string

const (
	TransactionAuthorize  TransactionType = "AUTHORIZE"
	TransactionCapture    TransactionType = "CAPTURE"
	TransactionPurchase   TransactionType = "PURCHASE"
	TransactionVoid       TransactionType = "VOID"
	TransactionRefund     TransactionType = "REFUND"
	TransactionCredit     TransactionType = "CREDIT"
	TransactionChargeback TransactionType = "CHARGEBACK"
)

// TransactionStatus is the resolution of a single transaction. Once a
// transaction leaves PENDING it never goes back.
type TransactionStatus string

const (
	TransactionPending              TransactionStatus = "PENDING"
	TransactionSuccess              TransactionStatus = "SUCCESS"
	TransactionPaymentFailureAbort  TransactionStatus = "PAYMENT_FAILURE_ABORTED"
	TransactionPluginFailureAborted TransactionStatus = "PLUGIN_FAILURE_ABORTED"
)

// Resolved reports whether the status is terminal.
func (s TransactionStatus) Resolved() bool {
	return s != TransactionPending
}

// Payment is the aggregate root spanning one or more transactions against a
// single payment method. Transactions are kept in effective-date order,
// recomputed at read time.
type Payment struct {
	ID              uuid.UUID     `json:"id"`
	AccountID       uuid.UUID     `json:"account_id"`
	PaymentMethodID *uuid.UUID    `json:"payment_method_id,omitempty"`
	PaymentNumber   int64         `json:"payment_number"`
	ExternalKey     string        `json:"external_key"`
	StateName       string        `json:"state_name"`
	Transactions    []Transaction `json:"transactions"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Transaction is one gateway-facing attempt within a payment.
type Transaction struct {
	ID                uuid.UUID               `json:"id"`
	PaymentID         uuid.UUID               `json:"payment_id"`
	ExternalKey       string                  `json:"external_key"`
	Type              TransactionType         `json:"type"`
	Status            TransactionStatus       `json:"status"`
	Amount            decimal.Decimal         `json:"amount"`
	Currency          Currency                `json:"currency"`
	ProcessedAmount   decimal.Decimal         `json:"processed_amount"`
	ProcessedCurrency Currency                `json:"processed_currency"`
	GatewayErrorCode  string                  `json:"gateway_error_code,omitempty"`
	GatewayErrorMsg   string                  `json:"gateway_error_msg,omitempty"`
	EffectiveDate     time.Time               `json:"effective_date"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
	PluginInfo        *GatewayTransactionInfo `json:"plugin_info,omitempty"`
}

// GatewayTransactionInfo is what a gateway plugin reports about one transaction.
type GatewayTransactionInfo struct {
	TransactionID     uuid.UUID         `json:"transaction_id"`
	PaymentID         uuid.UUID         `json:"payment_id"`
	Status            TransactionStatus `json:"status"`
	ProcessedAmount   decimal.Decimal   `json:"processed_amount"`
	ProcessedCurrency Currency          `json:"processed_currency"`
	GatewayReference  string            `json:"gateway_reference,omitempty"`
	GatewayErrorCode  string            `json:"gateway_error_code,omitempty"`
	GatewayErrorMsg   string            `json:"gateway_error_msg,omitempty"`
}
