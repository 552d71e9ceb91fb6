// File: services/payment/api.go
package payment

import (
	"context"

	"corebill/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account-level payment operations always hold the account lock.
const shouldLockAccount = true

// API is the public payment surface. It converts tenant-scoped call contexts
// into account-scoped internal contexts and delegates to the processor.
type API interface {
	CreateAuthorization(ctx context.Context, account *models.Account, paymentMethodID *uuid.UUID, paymentID *uuid.UUID, amount decimal.Decimal, currency models.Currency, paymentExternalKey, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error)
	CreateCapture(ctx context.Context, account *models.Account, paymentID uuid.UUID, amount decimal.Decimal, currency models.Currency, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error)
	CreatePurchase(ctx context.Context, account *models.Account, paymentMethodID *uuid.UUID, paymentID *uuid.UUID, amount decimal.Decimal, currency models.Currency, paymentExternalKey, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error)
	CreateVoid(ctx context.Context, account *models.Account, paymentID uuid.UUID, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error)
	CreateRefund(ctx context.Context, account *models.Account, paymentID uuid.UUID, amount decimal.Decimal, currency models.Currency, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error)
	CreateCredit(ctx context.Context, account *models.Account, paymentMethodID *uuid.UUID, amount decimal.Decimal, currency models.Currency, paymentExternalKey, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error)

	NotifyPendingTransactionStateChanged(ctx context.Context, account *models.Account, transactionExternalKey string, success bool, callCtx models.CallContext) error
	NotifyChargeback(ctx context.Context, account *models.Account, paymentExternalKey, chargebackExternalKey string, amount decimal.Decimal, currency models.Currency, callCtx models.CallContext) error

	GetPayment(ctx context.Context, id uuid.UUID, withPluginInfo bool, pluginName string, callCtx models.CallContext) (*models.Payment, error)
	GetPaymentByExternalKey(ctx context.Context, externalKey string, withPluginInfo bool, pluginName string, callCtx models.CallContext) (*models.Payment, error)
	GetAccountPayments(ctx context.Context, accountID uuid.UUID, callCtx models.CallContext) ([]models.Payment, error)
	GetPayments(ctx context.Context, offset, limit int64, pluginName string, callCtx models.CallContext) (Pagination[models.Payment], error)
	SearchPayments(ctx context.Context, query string, offset, limit int64, pluginName string, callCtx models.CallContext) (Pagination[models.Payment], error)
	SearchAllPayments(ctx context.Context, query string, offset, limit int64, callCtx models.CallContext) (Pagination[models.Payment], error)
}

// DefaultAPI is the thin facade over the processor.
type DefaultAPI struct {
	processor *Processor
}

// NewAPI builds the payment API facade.
func NewAPI(processor *Processor) API {
	return &DefaultAPI{processor: processor}
}

func (a *DefaultAPI) CreateAuthorization(ctx context.Context, account *models.Account, paymentMethodID *uuid.UUID, paymentID *uuid.UUID, amount decimal.Decimal, currency models.Currency, paymentExternalKey, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error) {
	return a.processor.CreateAuthorization(ctx, TransactionInput{
		Account:                account,
		PaymentMethodID:        paymentMethodID,
		PaymentID:              paymentID,
		PaymentExternalKey:     paymentExternalKey,
		TransactionExternalKey: transactionExternalKey,
		Amount:                 amount,
		Currency:               currency,
		PluginName:             pluginName,
		ShouldLock:             shouldLockAccount,
	}, callCtx.Internal(account.ID))
}

func (a *DefaultAPI) CreateCapture(ctx context.Context, account *models.Account, paymentID uuid.UUID, amount decimal.Decimal, currency models.Currency, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error) {
	return a.processor.CreateCapture(ctx, TransactionInput{
		Account:                account,
		PaymentID:              &paymentID,
		TransactionExternalKey: transactionExternalKey,
		Amount:                 amount,
		Currency:               currency,
		PluginName:             pluginName,
		ShouldLock:             shouldLockAccount,
	}, callCtx.Internal(account.ID))
}

func (a *DefaultAPI) CreatePurchase(ctx context.Context, account *models.Account, paymentMethodID *uuid.UUID, paymentID *uuid.UUID, amount decimal.Decimal, currency models.Currency, paymentExternalKey, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error) {
	return a.processor.CreatePurchase(ctx, TransactionInput{
		Account:                account,
		PaymentMethodID:        paymentMethodID,
		PaymentID:              paymentID,
		PaymentExternalKey:     paymentExternalKey,
		TransactionExternalKey: transactionExternalKey,
		Amount:                 amount,
		Currency:               currency,
		PluginName:             pluginName,
		ShouldLock:             shouldLockAccount,
	}, callCtx.Internal(account.ID))
}

func (a *DefaultAPI) CreateVoid(ctx context.Context, account *models.Account, paymentID uuid.UUID, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error) {
	return a.processor.CreateVoid(ctx, TransactionInput{
		Account:                account,
		PaymentID:              &paymentID,
		TransactionExternalKey: transactionExternalKey,
		PluginName:             pluginName,
		ShouldLock:             shouldLockAccount,
	}, callCtx.Internal(account.ID))
}

func (a *DefaultAPI) CreateRefund(ctx context.Context, account *models.Account, paymentID uuid.UUID, amount decimal.Decimal, currency models.Currency, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error) {
	return a.processor.CreateRefund(ctx, TransactionInput{
		Account:                account,
		PaymentID:              &paymentID,
		TransactionExternalKey: transactionExternalKey,
		Amount:                 amount,
		Currency:               currency,
		PluginName:             pluginName,
		ShouldLock:             shouldLockAccount,
	}, callCtx.Internal(account.ID))
}

func (a *DefaultAPI) CreateCredit(ctx context.Context, account *models.Account, paymentMethodID *uuid.UUID, amount decimal.Decimal, currency models.Currency, paymentExternalKey, transactionExternalKey, pluginName string, callCtx models.CallContext) (*models.Payment, error) {
	return a.processor.CreateCredit(ctx, TransactionInput{
		Account:                account,
		PaymentMethodID:        paymentMethodID,
		PaymentExternalKey:     paymentExternalKey,
		TransactionExternalKey: transactionExternalKey,
		Amount:                 amount,
		Currency:               currency,
		PluginName:             pluginName,
		ShouldLock:             shouldLockAccount,
	}, callCtx.Internal(account.ID))
}

func (a *DefaultAPI) NotifyPendingTransactionStateChanged(ctx context.Context, account *models.Account, transactionExternalKey string, success bool, callCtx models.CallContext) error {
	return a.processor.NotifyPendingTransactionStateChanged(ctx, transactionExternalKey, success, callCtx.Internal(account.ID))
}

func (a *DefaultAPI) NotifyChargeback(ctx context.Context, account *models.Account, paymentExternalKey, chargebackExternalKey string, amount decimal.Decimal, currency models.Currency, callCtx models.CallContext) error {
	return a.processor.NotifyChargeback(ctx, paymentExternalKey, chargebackExternalKey, amount, currency, callCtx.Internal(account.ID))
}

func (a *DefaultAPI) GetPayment(ctx context.Context, id uuid.UUID, withPluginInfo bool, pluginName string, callCtx models.CallContext) (*models.Payment, error) {
	return a.processor.GetPayment(ctx, id, withPluginInfo, pluginName)
}

func (a *DefaultAPI) GetPaymentByExternalKey(ctx context.Context, externalKey string, withPluginInfo bool, pluginName string, callCtx models.CallContext) (*models.Payment, error) {
	return a.processor.GetPaymentByExternalKey(ctx, externalKey, withPluginInfo, pluginName)
}

func (a *DefaultAPI) GetAccountPayments(ctx context.Context, accountID uuid.UUID, callCtx models.CallContext) ([]models.Payment, error) {
	return a.processor.GetAccountPayments(ctx, accountID)
}

func (a *DefaultAPI) GetPayments(ctx context.Context, offset, limit int64, pluginName string, callCtx models.CallContext) (Pagination[models.Payment], error) {
	return a.processor.GetPayments(ctx, offset, limit, pluginName)
}

func (a *DefaultAPI) SearchPayments(ctx context.Context, query string, offset, limit int64, pluginName string, callCtx models.CallContext) (Pagination[models.Payment], error) {
	return a.processor.SearchPayments(ctx, query, offset, limit, pluginName)
}

func (a *DefaultAPI) SearchAllPayments(ctx context.Context, query string, offset, limit int64, callCtx models.CallContext) (Pagination[models.Payment], error) {
	return a.processor.SearchAllPayments(ctx, query, offset, limit)
}
