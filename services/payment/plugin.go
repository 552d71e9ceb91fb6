package payment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"corebill/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRequest is what a gateway plugin receives for one attempt.
type TransactionRequest struct {
	AccountID       uuid.UUID
	PaymentID       uuid.UUID
	TransactionID   uuid.UUID
	PaymentMethodID *uuid.UUID
	Type            models.TransactionType
	Amount          decimal.Decimal
	Currency        models.Currency
	ExternalKey     string
	EffectiveDate   time.Time
}

// TransactionResult is the gateway's verdict on one submitted transaction.
type TransactionResult struct {
	Status            models.TransactionStatus
	ProcessedAmount   decimal.Decimal
	ProcessedCurrency models.Currency
	GatewayReference  string
	GatewayErrorCode  string
	GatewayErrorMsg   string
}

// PaymentGatewayPlugin is the narrow contract a payment gateway integration
// fulfils: submit a transaction, report back on known ones, and search its own
// transaction store.
type PaymentGatewayPlugin interface {
	Name() string
	Submit(ctx context.Context, req TransactionRequest) (TransactionResult, error)
	FetchInfo(ctx context.Context, paymentID uuid.UUID, transactionIDs []uuid.UUID) ([]models.GatewayTransactionInfo, error)
	Search(ctx context.Context, query string, offset, limit int64) ([]models.GatewayTransactionInfo, int64, error)
}

// Registry holds the configured gateway plugins. It is built once at startup
// and passed by reference into the processor; plugins are never looked up from
// ambient state.
type Registry struct {
	plugins map[string]PaymentGatewayPlugin
	names   []string
}

// NewRegistry builds a registry from the given plugins. Plugin names must be
// unique.
func NewRegistry(plugins ...PaymentGatewayPlugin) (*Registry, error) {
	r := &Registry{plugins: make(map[string]PaymentGatewayPlugin, len(plugins))}
	for _, p := range plugins {
		if _, dup := r.plugins[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate gateway plugin %q", p.Name())
		}
		r.plugins[p.Name()] = p
		r.names = append(r.names, p.Name())
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the named plugin.
func (r *Registry) Get(name string) (PaymentGatewayPlugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, NewNotFoundError("no gateway plugin registered under %q", name)
	}
	return p, nil
}

// Names lists registered plugin names in deterministic order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
