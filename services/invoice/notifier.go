// File: services/invoice/notifier.go
package invoice

import (
	"context"
	"fmt"

	"corebill/models"
	"corebill/utils"

	"firebase.google.com/go/v4/messaging"
)

// FCMNotifier pushes an invoice notification to the account owner's device.
type FCMNotifier struct{}

func NewFCMNotifier() *FCMNotifier {
	return &FCMNotifier{}
}

func (n *FCMNotifier) Notify(ctx context.Context, account *models.Account, inv *models.Invoice, callCtx models.InternalCallContext) error {
	token := account.FCMToken
	if token == "" {
		return fmt.Errorf("account %s has no FCM token", account.ID)
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: fmt.Sprintf("Invoice #%d", inv.InvoiceNumber),
			Body:  fmt.Sprintf("A new invoice of %s %s is ready.", inv.Balance().StringFixed(2), inv.Currency),
		},
		Data: map[string]string{
			"invoiceId":     inv.ID.String(),
			"invoiceNumber": fmt.Sprintf("%d", inv.InvoiceNumber),
			"accountId":     account.ID.String(),
		},
	}

	if _, err := utils.FCMClient.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	return nil
}
