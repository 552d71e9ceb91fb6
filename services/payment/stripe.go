// File: services/payment/stripe.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"corebill/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

const stripePluginName = "stripe"

// StripeGateway implements PaymentGatewayPlugin on top of Stripe
// PaymentIntents. Transactions are tagged with payment/transaction ids in the
// intent metadata so they can be found again.
type StripeGateway struct {
	client *client.API
	log    *zap.Logger
}

// NewStripeGateway builds the gateway with its own client, never the global
// stripe key state.
func NewStripeGateway(apiKey string, log *zap.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeGateway{client: sc, log: log}
}

func (g *StripeGateway) Name() string { return stripePluginName }

// Submit executes one transaction against Stripe. Gateway declines come back
// as a PAYMENT_FAILURE_ABORTED result with diagnostics; transport and
// configuration problems come back as errors.
func (g *StripeGateway) Submit(ctx context.Context, req TransactionRequest) (TransactionResult, error) {
	switch req.Type {
	case models.TransactionAuthorize:
		return g.createIntent(ctx, req, true)
	case models.TransactionPurchase, models.TransactionCredit:
		return g.createIntent(ctx, req, false)
	case models.TransactionCapture:
		return g.capture(ctx, req)
	case models.TransactionVoid:
		return g.cancel(ctx, req)
	case models.TransactionRefund:
		return g.refund(ctx, req)
	default:
		return TransactionResult{}, fmt.Errorf("transaction type %s is not submitted to stripe", req.Type)
	}
}

func (g *StripeGateway) createIntent(ctx context.Context, req TransactionRequest, authorizeOnly bool) (TransactionResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(toStripeAmount(req.Amount)),
		Currency:   stripe.String(strings.ToLower(string(req.Currency))),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.ExternalKey)
	if authorizeOnly {
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	}
	if req.PaymentMethodID != nil {
		params.PaymentMethod = stripe.String(req.PaymentMethodID.String())
	}
	params.Metadata = map[string]string{
		"account_id":     req.AccountID.String(),
		"payment_id":     req.PaymentID.String(),
		"transaction_id": req.TransactionID.String(),
	}

	pi, err := g.client.PaymentIntents.New(params)
	return g.mapOutcome(req, pi, err)
}

// findIntent locates the intent created for the payment via metadata search.
func (g *StripeGateway) findIntent(ctx context.Context, paymentID uuid.UUID) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['payment_id']:'%s'", paymentID),
			Limit:   stripe.Int64(1),
			Context: ctx,
		},
	}
	iter := g.client.PaymentIntents.Search(params)
	if iter.Next() {
		return iter.PaymentIntent(), nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no stripe intent for payment %s", paymentID)
}

func (g *StripeGateway) capture(ctx context.Context, req TransactionRequest) (TransactionResult, error) {
	intent, err := g.findIntent(ctx, req.PaymentID)
	if err != nil {
		return TransactionResult{}, err
	}
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(toStripeAmount(req.Amount)),
	}
	params.Context = ctx
	pi, err := g.client.PaymentIntents.Capture(intent.ID, params)
	return g.mapOutcome(req, pi, err)
}

func (g *StripeGateway) cancel(ctx context.Context, req TransactionRequest) (TransactionResult, error) {
	intent, err := g.findIntent(ctx, req.PaymentID)
	if err != nil {
		return TransactionResult{}, err
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	pi, err := g.client.PaymentIntents.Cancel(intent.ID, params)
	if err != nil {
		return g.mapOutcome(req, nil, err)
	}
	return TransactionResult{
		Status:            models.TransactionSuccess,
		ProcessedAmount:   req.Amount,
		ProcessedCurrency: req.Currency,
		GatewayReference:  pi.ID,
	}, nil
}

func (g *StripeGateway) refund(ctx context.Context, req TransactionRequest) (TransactionResult, error) {
	intent, err := g.findIntent(ctx, req.PaymentID)
	if err != nil {
		return TransactionResult{}, err
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intent.ID),
		Amount:        stripe.Int64(toStripeAmount(req.Amount)),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.ExternalKey)

	ref, err := g.client.Refunds.New(params)
	if err != nil {
		return g.mapOutcome(req, nil, err)
	}
	result := TransactionResult{
		ProcessedAmount:   fromStripeAmount(ref.Amount),
		ProcessedCurrency: models.Currency(strings.ToUpper(string(ref.Currency))),
		GatewayReference:  ref.ID,
	}
	switch ref.Status {
	case stripe.RefundStatusSucceeded:
		result.Status = models.TransactionSuccess
	case stripe.RefundStatusPending:
		result.Status = models.TransactionPending
	default:
		result.Status = models.TransactionPaymentFailureAbort
		result.GatewayErrorCode = string(ref.Status)
	}
	return result, nil
}

// mapOutcome translates a PaymentIntent call result into a TransactionResult.
// Declines become PAYMENT_FAILURE_ABORTED; anything else is an error for the
// automaton to absorb.
func (g *StripeGateway) mapOutcome(req TransactionRequest, pi *stripe.PaymentIntent, err error) (TransactionResult, error) {
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return TransactionResult{
				Status:           models.TransactionPaymentFailureAbort,
				GatewayErrorCode: string(stripeErr.Code),
				GatewayErrorMsg:  stripeErr.Msg,
			}, nil
		}
		return TransactionResult{}, err
	}

	result := TransactionResult{
		ProcessedAmount:   fromStripeAmount(pi.Amount),
		ProcessedCurrency: models.Currency(strings.ToUpper(string(pi.Currency))),
		GatewayReference:  pi.ID,
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = models.TransactionSuccess
	case stripe.PaymentIntentStatusRequiresCapture:
		// An authorization hold is a successful AUTHORIZE.
		result.Status = models.TransactionSuccess
	case stripe.PaymentIntentStatusProcessing:
		result.Status = models.TransactionPending
	default:
		result.Status = models.TransactionPaymentFailureAbort
		result.GatewayErrorCode = string(pi.Status)
		if pi.LastPaymentError != nil {
			result.GatewayErrorCode = string(pi.LastPaymentError.Code)
			result.GatewayErrorMsg = pi.LastPaymentError.Msg
		}
	}

	if result.Status == models.TransactionSuccess && req.Type == models.TransactionAuthorize {
		result.ProcessedAmount = req.Amount
		result.ProcessedCurrency = req.Currency
	}
	return result, nil
}

// FetchInfo reports Stripe's live view of the requested transactions, matched
// back by the transaction id carried in the intent metadata.
func (g *StripeGateway) FetchInfo(ctx context.Context, paymentID uuid.UUID, transactionIDs []uuid.UUID) ([]models.GatewayTransactionInfo, error) {
	wanted := make(map[uuid.UUID]bool, len(transactionIDs))
	for _, id := range transactionIDs {
		wanted[id] = true
	}

	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['payment_id']:'%s'", paymentID),
			Context: ctx,
		},
	}
	var infos []models.GatewayTransactionInfo
	iter := g.client.PaymentIntents.Search(params)
	for iter.Next() {
		info, ok := g.intentToInfo(iter.PaymentIntent())
		if ok && wanted[info.TransactionID] {
			infos = append(infos, info)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}

// Search queries Stripe's payment intent search and maps hits to transaction
// info. Offset is applied client-side since the search API pages by token.
func (g *StripeGateway) Search(ctx context.Context, query string, offset, limit int64) ([]models.GatewayTransactionInfo, int64, error) {
	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   query,
			Context: ctx,
		},
	}

	var (
		infos []models.GatewayTransactionInfo
		seen  int64
	)
	iter := g.client.PaymentIntents.Search(params)
	for iter.Next() {
		info, ok := g.intentToInfo(iter.PaymentIntent())
		if !ok {
			continue
		}
		if seen >= offset && int64(len(infos)) < limit {
			infos = append(infos, info)
		}
		seen++
	}
	if err := iter.Err(); err != nil {
		return nil, 0, err
	}
	return infos, seen, nil
}

func (g *StripeGateway) intentToInfo(pi *stripe.PaymentIntent) (models.GatewayTransactionInfo, bool) {
	txnID, err := uuid.Parse(pi.Metadata["transaction_id"])
	if err != nil {
		g.log.Debug("stripe intent without transaction metadata", zap.String("intent", pi.ID))
		return models.GatewayTransactionInfo{}, false
	}
	paymentID, err := uuid.Parse(pi.Metadata["payment_id"])
	if err != nil {
		return models.GatewayTransactionInfo{}, false
	}

	info := models.GatewayTransactionInfo{
		TransactionID:     txnID,
		PaymentID:         paymentID,
		ProcessedAmount:   fromStripeAmount(pi.Amount),
		ProcessedCurrency: models.Currency(strings.ToUpper(string(pi.Currency))),
		GatewayReference:  pi.ID,
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		info.Status = models.TransactionSuccess
	case stripe.PaymentIntentStatusProcessing:
		info.Status = models.TransactionPending
	default:
		info.Status = models.TransactionPaymentFailureAbort
	}
	if pi.LastPaymentError != nil {
		info.GatewayErrorCode = string(pi.LastPaymentError.Code)
		info.GatewayErrorMsg = pi.LastPaymentError.Msg
	}
	return info, true
}

// toStripeAmount converts a decimal amount to minor units.
func toStripeAmount(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromStripeAmount(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-2)
}
