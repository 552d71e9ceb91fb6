package payment

import (
	"context"
	"sort"

	paymentRepo "corebill/database/repository/payment"
	"corebill/models"
	"corebill/utils"

	"github.com/google/uuid"
)

// fakePaymentRepo is an in-memory PaymentRepository that records every write,
// enforcing the same "only PENDING transactions resolve" rule as the real one.
type fakePaymentRepo struct {
	payments map[uuid.UUID]*models.Payment
	txns     map[uuid.UUID]*models.Transaction

	completions      []paymentRepo.CompletionUpdate
	completionEvents [][]models.BusEvent
	chargebackCalls  int
	chargebackEvents []models.BusEvent

	nextPaymentNumber int64
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{
		payments: make(map[uuid.UUID]*models.Payment),
		txns:     make(map[uuid.UUID]*models.Transaction),
	}
}

func (r *fakePaymentRepo) CreatePaymentWithTransaction(ctx context.Context, payment *models.Payment, txn *models.Transaction) error {
	r.nextPaymentNumber++
	payment.PaymentNumber = r.nextPaymentNumber
	p := *payment
	t := *txn
	r.payments[p.ID] = &p
	r.txns[t.ID] = &t
	return nil
}

func (r *fakePaymentRepo) AddTransaction(ctx context.Context, accountID uuid.UUID, txn *models.Transaction) error {
	t := *txn
	r.txns[t.ID] = &t
	return nil
}

func (r *fakePaymentRepo) UpdateOnCompletion(ctx context.Context, update paymentRepo.CompletionUpdate, events ...models.BusEvent) error {
	txn, ok := r.txns[update.TransactionID]
	if !ok || txn.Status != models.TransactionPending {
		return paymentRepo.ErrNotFound
	}
	txn.Status = update.Status
	txn.ProcessedAmount = update.ProcessedAmount
	txn.ProcessedCurrency = update.ProcessedCurrency
	txn.GatewayErrorCode = update.GatewayErrorCode
	txn.GatewayErrorMsg = update.GatewayErrorMsg
	if p, ok := r.payments[update.PaymentID]; ok {
		p.StateName = update.StateName
	}
	r.completions = append(r.completions, update)
	r.completionEvents = append(r.completionEvents, events)
	return nil
}

func (r *fakePaymentRepo) ApplyChargeback(ctx context.Context, accountID uuid.UUID, stateName string, txn *models.Transaction, events ...models.BusEvent) error {
	r.chargebackCalls++
	t := *txn
	r.txns[t.ID] = &t
	if p, ok := r.payments[txn.PaymentID]; ok {
		p.StateName = stateName
	}
	r.chargebackEvents = append(r.chargebackEvents, events...)
	return nil
}

func (r *fakePaymentRepo) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, paymentRepo.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *fakePaymentRepo) GetPaymentByExternalKey(ctx context.Context, externalKey string) (*models.Payment, error) {
	for _, p := range r.payments {
		if p.ExternalKey == externalKey {
			out := *p
			return &out, nil
		}
	}
	return nil, paymentRepo.ErrNotFound
}

func (r *fakePaymentRepo) GetTransactionByExternalKey(ctx context.Context, externalKey string) (*models.Transaction, error) {
	for _, t := range r.txns {
		if t.ExternalKey == externalKey {
			out := *t
			return &out, nil
		}
	}
	return nil, paymentRepo.ErrNotFound
}

func (r *fakePaymentRepo) GetPaymentsForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if p.AccountID == accountID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentNumber < out[j].PaymentNumber })
	return out, nil
}

func (r *fakePaymentRepo) GetTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range r.txns {
		if p, ok := r.payments[t.PaymentID]; ok && p.AccountID == accountID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) GetTransactionsForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range r.txns {
		if t.PaymentID == paymentID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) GetPayments(ctx context.Context, offset, limit int64) ([]models.Payment, int64, error) {
	var all []models.Payment
	for _, p := range r.payments {
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PaymentNumber > all[j].PaymentNumber })
	total := int64(len(all))
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// fakeGateway is a scripted PaymentGatewayPlugin.
type fakeGateway struct {
	name       string
	result     TransactionResult
	submitErr  error
	requests   []TransactionRequest
	infos      []models.GatewayTransactionInfo
	infoErr    error
	searchHits []models.GatewayTransactionInfo
	searchErr  error
}

func (g *fakeGateway) Name() string {
	if g.name == "" {
		return "fake"
	}
	return g.name
}

func (g *fakeGateway) Submit(ctx context.Context, req TransactionRequest) (TransactionResult, error) {
	g.requests = append(g.requests, req)
	if g.submitErr != nil {
		return TransactionResult{}, g.submitErr
	}
	return g.result, nil
}

func (g *fakeGateway) FetchInfo(ctx context.Context, paymentID uuid.UUID, transactionIDs []uuid.UUID) ([]models.GatewayTransactionInfo, error) {
	if g.infoErr != nil {
		return nil, g.infoErr
	}
	return g.infos, nil
}

func (g *fakeGateway) Search(ctx context.Context, query string, offset, limit int64) ([]models.GatewayTransactionInfo, int64, error) {
	if g.searchErr != nil {
		return nil, 0, g.searchErr
	}
	total := int64(len(g.searchHits))
	if offset >= total || limit == 0 {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return g.searchHits[offset:end], total, nil
}

type fakeLock struct {
	releases int
}

func (l *fakeLock) Release(ctx context.Context) { l.releases++ }

// fakeLocker hands out the same lock every time, or fails with err.
type fakeLocker struct {
	err      error
	lock     fakeLock
	acquired []string
}

func (f *fakeLocker) TryAcquire(ctx context.Context, lockerType utils.LockerType, key string, maxAttempts int) (utils.Lock, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, key)
	return &f.lock, nil
}
