package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingMode says when a usage charge is billed relative to the period.
type BillingMode string

const (
	BillingInAdvance BillingMode = "IN_ADVANCE"
	BillingInArrear  BillingMode = "IN_ARREAR"
)

// Usage describes one metered dimension of a subscription plan.
type Usage struct {
	Name                string      `json:"name" bson:"name"`
	BillingMode         BillingMode `json:"billing_mode" bson:"billing_mode"`
	BillingPeriodMonths int         `json:"billing_period_months" bson:"billing_period_months"`
}

// BillingEvent is one externally computed billable transition for a
// subscription: a charge of Type covering [StartDate, EndDate).
type BillingEvent struct {
	SubscriptionID uuid.UUID       `json:"subscription_id" bson:"subscription_id"`
	Type           InvoiceItemType `json:"type" bson:"type"`
	UsageName      string          `json:"usage_name,omitempty" bson:"usage_name,omitempty"`
	Amount         decimal.Decimal `json:"amount" bson:"amount"`
	StartDate      time.Time       `json:"start_date" bson:"start_date"`
	EndDate        *time.Time      `json:"end_date,omitempty" bson:"end_date,omitempty"`
	Description    string          `json:"description,omitempty" bson:"description,omitempty"`
}

// BillingEventSet is the ordered, immutable event set the billing collaborator
// produces for an account.
type BillingEventSet struct {
	Events         []BillingEvent   `json:"events"`
	AutoInvoiceOff bool             `json:"auto_invoice_off"`
	Usages         map[string]Usage `json:"usages"`
}

// Empty reports whether the set carries no events at all.
func (s *BillingEventSet) Empty() bool {
	return len(s.Events) == 0
}

// DryRunArguments requests a generation pass without side effects.
type DryRunArguments struct {
	TargetSubscriptionID *uuid.UUID `json:"target_subscription_id,omitempty"`
}
