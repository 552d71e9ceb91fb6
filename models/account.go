package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the billing account every payment and invoice hangs off.
type Account struct {
	ID                  uuid.UUID  `bson:"id" json:"id"`
	ExternalKey         string     `bson:"external_key" json:"external_key"`
	Name                string     `bson:"name" json:"name"`
	Currency            Currency   `bson:"currency" json:"currency"`
	TimeZone            string     `bson:"time_zone" json:"time_zone"` // IANA name, e.g. "America/New_York"
	BillCycleDay        int        `bson:"bill_cycle_day" json:"bill_cycle_day"`
	PaymentMethodID     *uuid.UUID `bson:"payment_method_id,omitempty" json:"payment_method_id,omitempty"`
	NotifiedForInvoices bool       `bson:"notified_for_invoices" json:"notified_for_invoices"`
	FCMToken            string     `bson:"fcm_token,omitempty" json:"-"`
	CreatedAt           time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at" json:"updated_at"`
}

// Currency is an ISO-4217 code.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyKES Currency = "KES"
)
