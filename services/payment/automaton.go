// File: services/payment/automaton.go
package payment

import (
	"context"
	"fmt"

	paymentRepo "corebill/database/repository/payment"
	"corebill/models"
	"corebill/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// stateSet names the automaton states of one transaction type's lifecycle.
type stateSet struct {
	Init    string
	Pending string
	Success string
	Failed  string
	Errored string
}

var stateSets = map[models.TransactionType]stateSet{
	models.TransactionAuthorize:  {"AUTH_INIT", "AUTH_PENDING", "AUTH_SUCCESS", "AUTH_FAILED", "AUTH_ERRORED"},
	models.TransactionCapture:    {"CAPTURE_INIT", "CAPTURE_PENDING", "CAPTURE_SUCCESS", "CAPTURE_FAILED", "CAPTURE_ERRORED"},
	models.TransactionPurchase:   {"PURCHASE_INIT", "PURCHASE_PENDING", "PURCHASE_SUCCESS", "PURCHASE_FAILED", "PURCHASE_ERRORED"},
	models.TransactionVoid:       {"VOID_INIT", "VOID_PENDING", "VOID_SUCCESS", "VOID_FAILED", "VOID_ERRORED"},
	models.TransactionRefund:     {"REFUND_INIT", "REFUND_PENDING", "REFUND_SUCCESS", "REFUND_FAILED", "REFUND_ERRORED"},
	models.TransactionCredit:     {"CREDIT_INIT", "CREDIT_PENDING", "CREDIT_SUCCESS", "CREDIT_FAILED", "CREDIT_ERRORED"},
	models.TransactionChargeback: {"CHARGEBACK_INIT", "CHARGEBACK_PENDING", "CHARGEBACK_SUCCESS", "CHARGEBACK_FAILED", "CHARGEBACK_ERRORED"},
}

type transitionKey struct {
	state   string
	success bool
}

// Automaton drives a payment transaction through its lifecycle states using an
// explicit transition table. Each (state, outcome) pair maps to exactly one
// successor; unknown pairs are a configuration error.
type Automaton struct {
	table        map[transitionKey]string
	repo         paymentRepo.PaymentRepository
	locker       utils.Locker
	lockAttempts int
	clock        utils.Clock
	log          *zap.Logger
}

// NewAutomaton builds the transition table and validates its completeness:
// every reachable state has a defined successor for both outcomes.
func NewAutomaton(repo paymentRepo.PaymentRepository, locker utils.Locker, lockAttempts int, clock utils.Clock, log *zap.Logger) (*Automaton, error) {
	table := make(map[transitionKey]string)
	for _, set := range stateSets {
		table[transitionKey{set.Init, true}] = set.Success
		table[transitionKey{set.Init, false}] = set.Failed
		table[transitionKey{set.Pending, true}] = set.Success
		table[transitionKey{set.Pending, false}] = set.Failed
	}

	for _, set := range stateSets {
		for _, state := range []string{set.Init, set.Pending} {
			for _, outcome := range []bool{true, false} {
				if _, ok := table[transitionKey{state, outcome}]; !ok {
					return nil, fmt.Errorf("incomplete transition table: state %s has no successor for outcome %t", state, outcome)
				}
			}
		}
	}

	return &Automaton{
		table:        table,
		repo:         repo,
		locker:       locker,
		lockAttempts: lockAttempts,
		clock:        clock,
		log:          log,
	}, nil
}

// FetchNextState resolves the successor of (current, success) via the table.
func (a *Automaton) FetchNextState(current string, success bool) (string, error) {
	next, ok := a.table[transitionKey{current, success}]
	if !ok {
		return "", NewUnknownTransitionError("no transition from state %s with outcome %t", current, success)
	}
	return next, nil
}

// states returns the state names of one transaction type's lifecycle.
func (a *Automaton) states(typ models.TransactionType) (stateSet, error) {
	set, ok := stateSets[typ]
	if !ok {
		return stateSet{}, NewUnknownTransitionError("no states defined for transaction type %s", typ)
	}
	return set, nil
}

// RunInput carries everything one automaton run needs.
type RunInput struct {
	Type                   models.TransactionType
	Account                *models.Account
	PaymentMethodID        *uuid.UUID
	ExistingPaymentID      *uuid.UUID
	PaymentExternalKey     string
	TransactionExternalKey string
	Amount                 decimal.Decimal
	Currency               models.Currency
	ShouldLock             bool
	Plugin                 PaymentGatewayPlugin
	Context                models.InternalCallContext

	// Events builds the bus events persisted atomically with the completion.
	Events func(payment *models.Payment, txn *models.Transaction) []models.BusEvent
}

// Run drives one transaction from its INIT state through plugin invocation to
// a resolved state, persisting state name, status, processed amounts and
// gateway diagnostics in one repository call. Plugin failures are captured as
// a PLUGIN_FAILURE_ABORTED terminal state, never propagated as fatal.
func (a *Automaton) Run(ctx context.Context, input RunInput) (uuid.UUID, error) {
	set, err := a.states(input.Type)
	if err != nil {
		return uuid.Nil, err
	}

	paymentMethodID := input.PaymentMethodID
	if paymentMethodID == nil {
		paymentMethodID = input.Account.PaymentMethodID
	}
	if paymentMethodID == nil && input.ExistingPaymentID == nil {
		return uuid.Nil, NewPreconditionError("account %s has no payment method and none was supplied", input.Account.ID)
	}

	if input.ShouldLock {
		lock, err := a.locker.TryAcquire(ctx, utils.LockerAccountInvoicePayments, input.Account.ID.String(), a.lockAttempts)
		if err != nil {
			a.log.Warn("could not lock account for payment run",
				zap.String("accountID", input.Account.ID.String()),
				zap.Error(err))
			return uuid.Nil, err
		}
		defer lock.Release(ctx)
	}

	payment, txn, err := a.enterInitialState(ctx, set, paymentMethodID, input)
	if err != nil {
		return uuid.Nil, err
	}

	update := a.invokePlugin(ctx, set, input, payment, txn)

	txn.Status = update.Status
	txn.ProcessedAmount = update.ProcessedAmount
	txn.ProcessedCurrency = update.ProcessedCurrency
	txn.GatewayErrorCode = update.GatewayErrorCode
	txn.GatewayErrorMsg = update.GatewayErrorMsg
	payment.StateName = update.StateName

	var events []models.BusEvent
	if input.Events != nil {
		events = input.Events(payment, txn)
	}
	if err := a.repo.UpdateOnCompletion(ctx, update, events...); err != nil {
		return uuid.Nil, fmt.Errorf("failed to complete %s transaction %s: %w", input.Type, txn.ID, err)
	}
	return payment.ID, nil
}

// enterInitialState creates a new payment or continues an existing one, and
// persists the PENDING transaction that the plugin call will resolve.
func (a *Automaton) enterInitialState(ctx context.Context, set stateSet, paymentMethodID *uuid.UUID, input RunInput) (*models.Payment, *models.Transaction, error) {
	now := a.clock.Now()

	txn := &models.Transaction{
		ID:            uuid.New(),
		ExternalKey:   input.TransactionExternalKey,
		Type:          input.Type,
		Status:        models.TransactionPending,
		Amount:        input.Amount,
		Currency:      input.Currency,
		EffectiveDate: now,
	}
	if txn.ExternalKey == "" {
		txn.ExternalKey = txn.ID.String()
	}

	if input.ExistingPaymentID != nil {
		payment, err := a.repo.GetPayment(ctx, *input.ExistingPaymentID)
		if err != nil {
			return nil, nil, NewNotFoundError("payment %s: %v", *input.ExistingPaymentID, err)
		}
		txn.PaymentID = payment.ID
		payment.StateName = set.Init
		if err := a.repo.AddTransaction(ctx, payment.AccountID, txn); err != nil {
			return nil, nil, err
		}
		return payment, txn, nil
	}

	payment := &models.Payment{
		ID:              uuid.New(),
		AccountID:       input.Account.ID,
		PaymentMethodID: paymentMethodID,
		ExternalKey:     input.PaymentExternalKey,
		StateName:       set.Init,
	}
	if payment.ExternalKey == "" {
		payment.ExternalKey = payment.ID.String()
	}
	txn.PaymentID = payment.ID

	if err := a.repo.CreatePaymentWithTransaction(ctx, payment, txn); err != nil {
		return nil, nil, err
	}
	return payment, txn, nil
}

// invokePlugin submits the transaction to the gateway and maps the outcome to
// a completion update. A plugin error never escapes; it resolves the
// transaction into the errored state with diagnostics attached.
func (a *Automaton) invokePlugin(ctx context.Context, set stateSet, input RunInput, payment *models.Payment, txn *models.Transaction) paymentRepo.CompletionUpdate {
	update := paymentRepo.CompletionUpdate{
		PaymentID:     payment.ID,
		TransactionID: txn.ID,
	}

	result, err := input.Plugin.Submit(ctx, TransactionRequest{
		AccountID:       payment.AccountID,
		PaymentID:       payment.ID,
		TransactionID:   txn.ID,
		PaymentMethodID: payment.PaymentMethodID,
		Type:            input.Type,
		Amount:          input.Amount,
		Currency:        input.Currency,
		ExternalKey:     txn.ExternalKey,
		EffectiveDate:   txn.EffectiveDate,
	})
	if err != nil {
		a.log.Warn("gateway plugin failed",
			zap.String("plugin", input.Plugin.Name()),
			zap.String("transactionID", txn.ID.String()),
			zap.Error(err))
		update.Status = models.TransactionPluginFailureAborted
		update.StateName = set.Errored
		update.GatewayErrorMsg = err.Error()
		return update
	}

	update.Status = result.Status
	update.ProcessedAmount = result.ProcessedAmount
	update.ProcessedCurrency = result.ProcessedCurrency
	update.GatewayErrorCode = result.GatewayErrorCode
	update.GatewayErrorMsg = result.GatewayErrorMsg

	switch result.Status {
	case models.TransactionPending:
		update.StateName = set.Pending
	case models.TransactionSuccess:
		update.StateName = set.Success
	case models.TransactionPaymentFailureAbort:
		update.StateName = set.Failed
	default:
		update.Status = models.TransactionPluginFailureAborted
		update.StateName = set.Errored
	}
	return update
}
