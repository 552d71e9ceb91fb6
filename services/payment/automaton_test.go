package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"corebill/models"
	"corebill/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testInstant = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestAutomaton(t *testing.T, repo *fakePaymentRepo, locker *fakeLocker) *Automaton {
	t.Helper()
	a, err := NewAutomaton(repo, locker, 3, utils.FixedClock{Instant: testInstant}, zap.NewNop())
	require.NoError(t, err)
	return a
}

func testAccount(withPaymentMethod bool) *models.Account {
	account := &models.Account{
		ID:       uuid.New(),
		Currency: models.CurrencyUSD,
		TimeZone: "UTC",
	}
	if withPaymentMethod {
		methodID := uuid.New()
		account.PaymentMethodID = &methodID
	}
	return account
}

func TestFetchNextState(t *testing.T) {
	a := newTestAutomaton(t, newFakePaymentRepo(), &fakeLocker{})

	cases := []struct {
		current string
		success bool
		want    string
	}{
		{"AUTH_INIT", true, "AUTH_SUCCESS"},
		{"AUTH_INIT", false, "AUTH_FAILED"},
		{"AUTH_PENDING", true, "AUTH_SUCCESS"},
		{"AUTH_PENDING", false, "AUTH_FAILED"},
		{"CAPTURE_PENDING", false, "CAPTURE_FAILED"},
		{"PURCHASE_INIT", true, "PURCHASE_SUCCESS"},
		{"REFUND_PENDING", true, "REFUND_SUCCESS"},
		{"CHARGEBACK_INIT", true, "CHARGEBACK_SUCCESS"},
	}
	for _, tc := range cases {
		got, err := a.FetchNextState(tc.current, tc.success)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "from %s success=%t", tc.current, tc.success)
	}
}

func TestFetchNextStateUnknownPair(t *testing.T) {
	a := newTestAutomaton(t, newFakePaymentRepo(), &fakeLocker{})

	for _, state := range []string{"AUTH_SUCCESS", "PURCHASE_FAILED", "NO_SUCH_STATE"} {
		_, err := a.FetchNextState(state, true)
		require.Error(t, err)
		assert.True(t, HasCode(err, CodeUnknownTransition))
	}
}

func TestRunOutcomeMapping(t *testing.T) {
	cases := []struct {
		name       string
		result     TransactionResult
		submitErr  error
		wantState  string
		wantStatus models.TransactionStatus
	}{
		{
			name: "success",
			result: TransactionResult{
				Status:            models.TransactionSuccess,
				ProcessedAmount:   decimal.NewFromInt(10),
				ProcessedCurrency: models.CurrencyUSD,
			},
			wantState:  "PURCHASE_SUCCESS",
			wantStatus: models.TransactionSuccess,
		},
		{
			name:       "pending",
			result:     TransactionResult{Status: models.TransactionPending},
			wantState:  "PURCHASE_PENDING",
			wantStatus: models.TransactionPending,
		},
		{
			name: "declined",
			result: TransactionResult{
				Status:           models.TransactionPaymentFailureAbort,
				GatewayErrorCode: "card_declined",
			},
			wantState:  "PURCHASE_FAILED",
			wantStatus: models.TransactionPaymentFailureAbort,
		},
		{
			name:       "unrecognized status",
			result:     TransactionResult{Status: "SOMETHING_ELSE"},
			wantState:  "PURCHASE_ERRORED",
			wantStatus: models.TransactionPluginFailureAborted,
		},
		{
			name:       "gateway error",
			submitErr:  errors.New("gateway down"),
			wantState:  "PURCHASE_ERRORED",
			wantStatus: models.TransactionPluginFailureAborted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakePaymentRepo()
			a := newTestAutomaton(t, repo, &fakeLocker{})
			gateway := &fakeGateway{result: tc.result, submitErr: tc.submitErr}

			paymentID, err := a.Run(context.Background(), RunInput{
				Type:     models.TransactionPurchase,
				Account:  testAccount(true),
				Amount:   decimal.NewFromInt(10),
				Currency: models.CurrencyUSD,
				Plugin:   gateway,
			})
			require.NoError(t, err)

			payment, err := repo.GetPayment(context.Background(), paymentID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantState, payment.StateName)

			require.Len(t, repo.completions, 1)
			update := repo.completions[0]
			assert.Equal(t, tc.wantStatus, update.Status)
			assert.Equal(t, tc.wantState, update.StateName)
			if tc.submitErr != nil {
				assert.Contains(t, update.GatewayErrorMsg, "gateway down")
			}
		})
	}
}

func TestRunCreatesPaymentAndTransaction(t *testing.T) {
	repo := newFakePaymentRepo()
	a := newTestAutomaton(t, repo, &fakeLocker{})
	account := testAccount(true)
	gateway := &fakeGateway{result: TransactionResult{
		Status:            models.TransactionSuccess,
		ProcessedAmount:   decimal.NewFromInt(50),
		ProcessedCurrency: models.CurrencyUSD,
	}}

	paymentID, err := a.Run(context.Background(), RunInput{
		Type:                   models.TransactionAuthorize,
		Account:                account,
		PaymentExternalKey:     "order-77",
		TransactionExternalKey: "order-77-auth",
		Amount:                 decimal.NewFromInt(50),
		Currency:               models.CurrencyUSD,
		Plugin:                 gateway,
	})
	require.NoError(t, err)

	payment, err := repo.GetPayment(context.Background(), paymentID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, payment.AccountID)
	assert.Equal(t, "order-77", payment.ExternalKey)
	assert.Equal(t, int64(1), payment.PaymentNumber)
	assert.Equal(t, "AUTH_SUCCESS", payment.StateName)

	txn, err := repo.GetTransactionByExternalKey(context.Background(), "order-77-auth")
	require.NoError(t, err)
	assert.Equal(t, paymentID, txn.PaymentID)
	assert.Equal(t, models.TransactionAuthorize, txn.Type)
	assert.Equal(t, models.TransactionSuccess, txn.Status)
	assert.True(t, txn.ProcessedAmount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, testInstant, txn.EffectiveDate)

	// The gateway saw the account's default payment method.
	require.Len(t, gateway.requests, 1)
	require.NotNil(t, gateway.requests[0].PaymentMethodID)
	assert.Equal(t, *account.PaymentMethodID, *gateway.requests[0].PaymentMethodID)
}

func TestRunContinuesExistingPayment(t *testing.T) {
	repo := newFakePaymentRepo()
	a := newTestAutomaton(t, repo, &fakeLocker{})
	account := testAccount(true)

	existing := &models.Payment{
		ID:              uuid.New(),
		AccountID:       account.ID,
		PaymentMethodID: account.PaymentMethodID,
		ExternalKey:     "order-1",
		StateName:       "AUTH_SUCCESS",
	}
	authTxn := &models.Transaction{
		ID:        uuid.New(),
		PaymentID: existing.ID,
		Type:      models.TransactionAuthorize,
		Status:    models.TransactionSuccess,
	}
	require.NoError(t, repo.CreatePaymentWithTransaction(context.Background(), existing, authTxn))

	gateway := &fakeGateway{result: TransactionResult{
		Status:            models.TransactionSuccess,
		ProcessedAmount:   decimal.NewFromInt(50),
		ProcessedCurrency: models.CurrencyUSD,
	}}
	paymentID, err := a.Run(context.Background(), RunInput{
		Type:              models.TransactionCapture,
		Account:           account,
		ExistingPaymentID: &existing.ID,
		Amount:            decimal.NewFromInt(50),
		Currency:          models.CurrencyUSD,
		Plugin:            gateway,
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, paymentID)

	payment, err := repo.GetPayment(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "CAPTURE_SUCCESS", payment.StateName)
	assert.Equal(t, int64(1), payment.PaymentNumber)

	txns, err := repo.GetTransactionsForPayment(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestRunRequiresPaymentMethod(t *testing.T) {
	repo := newFakePaymentRepo()
	a := newTestAutomaton(t, repo, &fakeLocker{})

	_, err := a.Run(context.Background(), RunInput{
		Type:     models.TransactionPurchase,
		Account:  testAccount(false),
		Amount:   decimal.NewFromInt(10),
		Currency: models.CurrencyUSD,
		Plugin:   &fakeGateway{},
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodePrecondition))
	assert.Empty(t, repo.payments)
}

func TestRunLocksAccount(t *testing.T) {
	repo := newFakePaymentRepo()
	locker := &fakeLocker{}
	a := newTestAutomaton(t, repo, locker)
	account := testAccount(true)

	_, err := a.Run(context.Background(), RunInput{
		Type:       models.TransactionPurchase,
		Account:    account,
		Amount:     decimal.NewFromInt(10),
		Currency:   models.CurrencyUSD,
		ShouldLock: true,
		Plugin:     &fakeGateway{result: TransactionResult{Status: models.TransactionSuccess}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{account.ID.String()}, locker.acquired)
	assert.Equal(t, 1, locker.lock.releases)
}

func TestRunLockFailure(t *testing.T) {
	repo := newFakePaymentRepo()
	locker := &fakeLocker{err: utils.ErrLockFailed}
	a := newTestAutomaton(t, repo, locker)

	_, err := a.Run(context.Background(), RunInput{
		Type:       models.TransactionPurchase,
		Account:    testAccount(true),
		Amount:     decimal.NewFromInt(10),
		Currency:   models.CurrencyUSD,
		ShouldLock: true,
		Plugin:     &fakeGateway{},
	})
	require.ErrorIs(t, err, utils.ErrLockFailed)
	assert.Empty(t, repo.payments)
}

func TestRunPersistsEventsWithCompletion(t *testing.T) {
	repo := newFakePaymentRepo()
	a := newTestAutomaton(t, repo, &fakeLocker{})

	_, err := a.Run(context.Background(), RunInput{
		Type:     models.TransactionPurchase,
		Account:  testAccount(true),
		Amount:   decimal.NewFromInt(10),
		Currency: models.CurrencyUSD,
		Plugin:   &fakeGateway{result: TransactionResult{Status: models.TransactionSuccess}},
		Events: func(payment *models.Payment, txn *models.Transaction) []models.BusEvent {
			return []models.BusEvent{models.PaymentInfoEvent{
				AccountID: payment.AccountID,
				PaymentID: payment.ID,
				Status:    txn.Status,
			}}
		},
	})
	require.NoError(t, err)

	require.Len(t, repo.completionEvents, 1)
	require.Len(t, repo.completionEvents[0], 1)
	assert.Equal(t, models.EventPaymentInfo, repo.completionEvents[0][0].Kind())
}
