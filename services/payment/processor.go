// File: services/payment/processor.go
package payment

import (
	"context"
	"sort"

	paymentRepo "corebill/database/repository/payment"
	"corebill/models"
	"corebill/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionInput carries the caller-supplied parameters of one payment
// operation.
type TransactionInput struct {
	Account                *models.Account
	PaymentMethodID        *uuid.UUID
	PaymentID              *uuid.UUID // continue an existing payment lifecycle
	PaymentExternalKey     string
	TransactionExternalKey string
	Amount                 decimal.Decimal
	Currency               models.Currency
	PluginName             string
	ShouldLock             bool
}

// Processor orchestrates payment operations: run the automaton, reload the
// persisted aggregate, and hand bucketed domain events to the repository for
// transactional outbox persistence.
type Processor struct {
	automaton *Automaton
	repo      paymentRepo.PaymentRepository
	registry  *Registry
	clock     utils.Clock
	log       *zap.Logger
}

// NewProcessor wires the processor with its collaborators.
func NewProcessor(automaton *Automaton, repo paymentRepo.PaymentRepository, registry *Registry, clock utils.Clock, log *zap.Logger) *Processor {
	return &Processor{
		automaton: automaton,
		repo:      repo,
		registry:  registry,
		clock:     clock,
		log:       log,
	}
}

// CreateAuthorization runs an AUTHORIZE transaction.
func (p *Processor) CreateAuthorization(ctx context.Context, input TransactionInput, callCtx models.InternalCallContext) (*models.Payment, error) {
	return p.runTransaction(ctx, models.TransactionAuthorize, input, callCtx)
}

// CreateCapture runs a CAPTURE transaction against an authorized payment.
func (p *Processor) CreateCapture(ctx context.Context, input TransactionInput, callCtx models.InternalCallContext) (*models.Payment, error) {
	return p.runTransaction(ctx, models.TransactionCapture, input, callCtx)
}

// CreatePurchase runs a PURCHASE transaction.
func (p *Processor) CreatePurchase(ctx context.Context, input TransactionInput, callCtx models.InternalCallContext) (*models.Payment, error) {
	return p.runTransaction(ctx, models.TransactionPurchase, input, callCtx)
}

// CreateVoid runs a VOID transaction against an existing payment.
func (p *Processor) CreateVoid(ctx context.Context, input TransactionInput, callCtx models.InternalCallContext) (*models.Payment, error) {
	return p.runTransaction(ctx, models.TransactionVoid, input, callCtx)
}

// CreateRefund runs a REFUND transaction against an existing payment.
func (p *Processor) CreateRefund(ctx context.Context, input TransactionInput, callCtx models.InternalCallContext) (*models.Payment, error) {
	return p.runTransaction(ctx, models.TransactionRefund, input, callCtx)
}

// CreateCredit runs a CREDIT transaction.
func (p *Processor) CreateCredit(ctx context.Context, input TransactionInput, callCtx models.InternalCallContext) (*models.Payment, error) {
	return p.runTransaction(ctx, models.TransactionCredit, input, callCtx)
}

func (p *Processor) runTransaction(ctx context.Context, typ models.TransactionType, input TransactionInput, callCtx models.InternalCallContext) (*models.Payment, error) {
	plugin, err := p.registry.Get(input.PluginName)
	if err != nil {
		return nil, err
	}

	meta := models.MetadataFrom(callCtx)
	paymentID, err := p.automaton.Run(ctx, RunInput{
		Type:                   typ,
		Account:                input.Account,
		PaymentMethodID:        input.PaymentMethodID,
		ExistingPaymentID:      input.PaymentID,
		PaymentExternalKey:     input.PaymentExternalKey,
		TransactionExternalKey: input.TransactionExternalKey,
		Amount:                 input.Amount,
		Currency:               input.Currency,
		ShouldLock:             input.ShouldLock,
		Plugin:                 plugin,
		Context:                callCtx,
		Events: func(payment *models.Payment, txn *models.Transaction) []models.BusEvent {
			return []models.BusEvent{buildTransactionEvent(payment, txn, meta)}
		},
	})
	if err != nil {
		return nil, err
	}

	return p.hydratePayment(ctx, paymentID, nil)
}

// buildTransactionEvent buckets the transaction outcome into one of the three
// payment event kinds.
func buildTransactionEvent(payment *models.Payment, txn *models.Transaction, meta models.EventMetadata) models.BusEvent {
	switch txn.Status {
	case models.TransactionSuccess, models.TransactionPending:
		return models.PaymentInfoEvent{
			AccountID:     payment.AccountID,
			PaymentID:     payment.ID,
			Amount:        txn.Amount,
			PaymentNumber: payment.PaymentNumber,
			Status:        txn.Status,
			EffectiveDate: txn.EffectiveDate,
			Metadata:      meta,
		}
	case models.TransactionPaymentFailureAbort:
		return models.PaymentErrorEvent{
			AccountID: payment.AccountID,
			PaymentID: payment.ID,
			Message:   txn.GatewayErrorMsg,
			Metadata:  meta,
		}
	default:
		return models.PaymentPluginErrorEvent{
			AccountID: payment.AccountID,
			PaymentID: payment.ID,
			Message:   txn.GatewayErrorMsg,
			Metadata:  meta,
		}
	}
}

// NotifyPendingTransactionStateChanged resolves a PENDING transaction found by
// external key to SUCCESS or PAYMENT_FAILURE_ABORTED, recomputing the owning
// payment's state via the transition table. Transaction and payment state are
// persisted together.
func (p *Processor) NotifyPendingTransactionStateChanged(ctx context.Context, transactionExternalKey string, success bool, callCtx models.InternalCallContext) error {
	txn, err := p.repo.GetTransactionByExternalKey(ctx, transactionExternalKey)
	if err != nil {
		return NewNotFoundError("transaction %q: %v", transactionExternalKey, err)
	}
	if txn.Status != models.TransactionPending {
		return NewNotPendingError("transaction %q is %s, not PENDING", transactionExternalKey, txn.Status)
	}

	payment, err := p.repo.GetPayment(ctx, txn.PaymentID)
	if err != nil {
		return NewNotFoundError("payment %s: %v", txn.PaymentID, err)
	}

	nextState, err := p.automaton.FetchNextState(payment.StateName, success)
	if err != nil {
		return err
	}

	update := paymentRepo.CompletionUpdate{
		PaymentID:     payment.ID,
		StateName:     nextState,
		TransactionID: txn.ID,
	}
	if success {
		update.Status = models.TransactionSuccess
		update.ProcessedAmount = txn.Amount
		update.ProcessedCurrency = txn.Currency
	} else {
		update.Status = models.TransactionPaymentFailureAbort
	}

	txn.Status = update.Status
	txn.ProcessedAmount = update.ProcessedAmount
	txn.ProcessedCurrency = update.ProcessedCurrency
	event := buildTransactionEvent(payment, txn, models.MetadataFrom(callCtx))

	return p.repo.UpdateOnCompletion(ctx, update, event)
}

// NotifyChargeback synthesizes a resolved CHARGEBACK transaction on an
// existing payment and moves the payment state along the chargeback success
// path, all in one transactional write.
func (p *Processor) NotifyChargeback(ctx context.Context, paymentExternalKey, chargebackExternalKey string, amount decimal.Decimal, currency models.Currency, callCtx models.InternalCallContext) error {
	payment, err := p.repo.GetPaymentByExternalKey(ctx, paymentExternalKey)
	if err != nil {
		return NewNotFoundError("payment %q: %v", paymentExternalKey, err)
	}

	set, err := p.automaton.states(models.TransactionChargeback)
	if err != nil {
		return err
	}
	nextState, err := p.automaton.FetchNextState(set.Init, true)
	if err != nil {
		return err
	}

	txn := &models.Transaction{
		ID:                uuid.New(),
		PaymentID:         payment.ID,
		ExternalKey:       chargebackExternalKey,
		Type:              models.TransactionChargeback,
		Status:            models.TransactionSuccess,
		Amount:            amount,
		Currency:          currency,
		ProcessedAmount:   amount,
		ProcessedCurrency: currency,
		EffectiveDate:     p.clock.Now(),
	}
	if txn.ExternalKey == "" {
		txn.ExternalKey = txn.ID.String()
	}

	event := buildTransactionEvent(payment, txn, models.MetadataFrom(callCtx))
	return p.repo.ApplyChargeback(ctx, payment.AccountID, nextState, txn, event)
}

// GetPayment loads one payment with its transaction history. When
// withPluginInfo is set, the named plugin's live view of each transaction is
// attached; plugin failures are logged and never fail the read.
func (p *Processor) GetPayment(ctx context.Context, id uuid.UUID, withPluginInfo bool, pluginName string) (*models.Payment, error) {
	payment, err := p.hydratePayment(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	if withPluginInfo {
		p.attachPluginInfo(ctx, payment, pluginName)
	}
	return payment, nil
}

// GetPaymentByExternalKey is GetPayment keyed by external key.
func (p *Processor) GetPaymentByExternalKey(ctx context.Context, externalKey string, withPluginInfo bool, pluginName string) (*models.Payment, error) {
	header, err := p.repo.GetPaymentByExternalKey(ctx, externalKey)
	if err != nil {
		return nil, NewNotFoundError("payment %q: %v", externalKey, err)
	}
	return p.GetPayment(ctx, header.ID, withPluginInfo, pluginName)
}

// GetAccountPayments lists every payment of the account with its transactions.
func (p *Processor) GetAccountPayments(ctx context.Context, accountID uuid.UUID) ([]models.Payment, error) {
	payments, err := p.repo.GetPaymentsForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	txns, err := p.repo.GetTransactionsForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	byPayment := make(map[uuid.UUID][]models.Transaction)
	for _, txn := range txns {
		byPayment[txn.PaymentID] = append(byPayment[txn.PaymentID], txn)
	}
	for i := range payments {
		payments[i].Transactions = sortTransactions(byPayment[payments[i].ID])
	}
	return payments, nil
}

// GetPayments returns one window over all persisted payments, with the named
// plugin's live transaction info attached.
func (p *Processor) GetPayments(ctx context.Context, offset, limit int64, pluginName string) (Pagination[models.Payment], error) {
	payments, total, err := p.repo.GetPayments(ctx, offset, limit)
	if err != nil {
		return Pagination[models.Payment]{}, err
	}
	for i := range payments {
		txns, err := p.repo.GetTransactionsForPayment(ctx, payments[i].ID)
		if err != nil {
			return Pagination[models.Payment]{}, err
		}
		payments[i].Transactions = sortTransactions(txns)
		if pluginName != "" {
			p.attachPluginInfo(ctx, &payments[i], pluginName)
		}
	}
	return Pagination[models.Payment]{
		Items:      payments,
		Offset:     offset,
		Limit:      limit,
		TotalCount: total,
		MaxCount:   total,
	}, nil
}

// SearchPayments searches one plugin's transaction store and maps hits back to
// persisted payments. Hits without a matching persisted payment are skipped.
func (p *Processor) SearchPayments(ctx context.Context, query string, offset, limit int64, pluginName string) (Pagination[models.Payment], error) {
	plugin, err := p.registry.Get(pluginName)
	if err != nil {
		return Pagination[models.Payment]{}, err
	}
	page, err := multiplexPages(offset, limit, []pageSource[models.Payment]{p.searchSource(ctx, query, plugin)})
	if err != nil {
		return Pagination[models.Payment]{}, err
	}
	return page, nil
}

// SearchAllPayments searches every registered plugin, multiplexing results
// into one global offset/limit window in plugin-name order.
func (p *Processor) SearchAllPayments(ctx context.Context, query string, offset, limit int64) (Pagination[models.Payment], error) {
	var sources []pageSource[models.Payment]
	for _, name := range p.registry.Names() {
		plugin, err := p.registry.Get(name)
		if err != nil {
			return Pagination[models.Payment]{}, err
		}
		sources = append(sources, p.searchSource(ctx, query, plugin))
	}
	return multiplexPages(offset, limit, sources)
}

func (p *Processor) searchSource(ctx context.Context, query string, plugin PaymentGatewayPlugin) pageSource[models.Payment] {
	return func(offset, limit int64) ([]models.Payment, int64, error) {
		infos, total, err := plugin.Search(ctx, query, offset, limit)
		if err != nil {
			return nil, 0, NewPluginSearchError("plugin %s search failed: %v", plugin.Name(), err)
		}

		var payments []models.Payment
		for _, info := range infos {
			payment, err := p.hydratePayment(ctx, info.PaymentID, &info)
			if err != nil {
				p.log.Warn("search hit without persisted payment",
					zap.String("plugin", plugin.Name()),
					zap.String("paymentID", info.PaymentID.String()),
					zap.Error(err))
				continue
			}
			payments = append(payments, *payment)
		}
		return payments, total, nil
	}
}

// hydratePayment assembles the payment aggregate: header plus transactions in
// effective-date order, optionally annotated with one plugin-reported info.
func (p *Processor) hydratePayment(ctx context.Context, id uuid.UUID, info *models.GatewayTransactionInfo) (*models.Payment, error) {
	payment, err := p.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, NewNotFoundError("payment %s: %v", id, err)
	}
	txns, err := p.repo.GetTransactionsForPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	payment.Transactions = sortTransactions(txns)

	if info != nil {
		for i := range payment.Transactions {
			if payment.Transactions[i].ID == info.TransactionID {
				attached := *info
				payment.Transactions[i].PluginInfo = &attached
			}
		}
	}
	return payment, nil
}

// attachPluginInfo enriches the payment's transactions with the plugin's live
// view, matched by transaction id. Failures are logged, never surfaced.
func (p *Processor) attachPluginInfo(ctx context.Context, payment *models.Payment, pluginName string) {
	plugin, err := p.registry.Get(pluginName)
	if err != nil {
		p.log.Warn("unknown plugin for info enrichment", zap.String("plugin", pluginName))
		return
	}

	ids := make([]uuid.UUID, len(payment.Transactions))
	for i, txn := range payment.Transactions {
		ids[i] = txn.ID
	}
	infos, err := plugin.FetchInfo(ctx, payment.ID, ids)
	if err != nil {
		p.log.Warn("plugin info fetch failed",
			zap.String("plugin", pluginName),
			zap.String("paymentID", payment.ID.String()),
			zap.Error(err))
		return
	}

	byID := make(map[uuid.UUID]models.GatewayTransactionInfo, len(infos))
	for _, info := range infos {
		byID[info.TransactionID] = info
	}
	for i := range payment.Transactions {
		if info, ok := byID[payment.Transactions[i].ID]; ok {
			attached := info
			payment.Transactions[i].PluginInfo = &attached
		}
	}
}

// sortTransactions orders by effective date ascending, recomputed at read
// time, never persisted as an order.
func sortTransactions(txns []models.Transaction) []models.Transaction {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].EffectiveDate.Before(txns[j].EffectiveDate)
	})
	return txns
}
