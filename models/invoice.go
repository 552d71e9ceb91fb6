package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceItemType classifies an invoice line.
type InvoiceItemType string

const (
	ItemFixed     InvoiceItemType = "FIXED"
	ItemRecurring InvoiceItemType = "RECURRING"
	ItemUsage     InvoiceItemType = "USAGE"
	ItemCBA       InvoiceItemType = "CBA_ADJ" // credit balance adjustment
)

// Invoice is one generated invoice for an account. Immutable once persisted;
// later runs may only append adjustment items that reference it by id.
type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	AccountID     uuid.UUID     `json:"account_id"`
	InvoiceNumber int64         `json:"invoice_number"` // assigned on persistence
	Currency      Currency      `json:"currency"`
	TargetDate    time.Time     `json:"target_date"` // local date, truncated to day
	Items         []InvoiceItem `json:"items"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Balance is the sum of item amounts.
func (i *Invoice) Balance() decimal.Decimal {
	total := decimal.Zero
	for _, item := range i.Items {
		total = total.Add(item.Amount)
	}
	return total
}

// AddItem appends a line to the in-memory invoice. Only valid before persistence.
func (i *Invoice) AddItem(item InvoiceItem) {
	i.Items = append(i.Items, item)
}

// AddItems appends several lines at once.
func (i *Invoice) AddItems(items []InvoiceItem) {
	i.Items = append(i.Items, items...)
}

// ItemsOfType filters the invoice lines by type.
func (i *Invoice) ItemsOfType(types ...InvoiceItemType) []InvoiceItem {
	var out []InvoiceItem
	for _, item := range i.Items {
		for _, t := range types {
			if item.Type == t {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// InvoiceItem is a single invoice line. InvoiceID links back to the originating
// invoice; when it differs from the invoice being built the item is an
// adjustment of that prior invoice.
type InvoiceItem struct {
	ID             uuid.UUID       `json:"id"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	Type           InvoiceItemType `json:"type"`
	SubscriptionID *uuid.UUID      `json:"subscription_id,omitempty"` // nil for account-level items
	UsageName      string          `json:"usage_name,omitempty"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       Currency        `json:"currency"`
	Description    string          `json:"description,omitempty"`
}
