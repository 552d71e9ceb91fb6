// File: services/invoice/dispatcher.go
package invoice

import (
	"context"
	"errors"
	"sort"
	"time"

	invoiceRepo "corebill/database/repository/invoice"
	"corebill/models"
	"corebill/services/outbox"
	"corebill/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome tags what one dispatch cycle produced.
type Outcome string

const (
	OutcomeGenerated        Outcome = "GENERATED"
	OutcomeNothingToInvoice Outcome = "NOTHING_TO_INVOICE"
	OutcomeLockFailed       Outcome = "LOCK_FAILED"
	OutcomeAutoInvoiceOff   Outcome = "AUTO_INVOICE_OFF"
)

// DispatchResult is the tagged outcome of one dispatch cycle. Invoice is set
// only for OutcomeGenerated; on a dry run it is the computed, unsaved invoice.
type DispatchResult struct {
	Outcome Outcome
	Invoice *models.Invoice
}

// Dispatcher runs the invoice generation cycle for one account at a time:
// lock, gather billing events, generate, adjust, persist, schedule callbacks,
// emit events, notify.
type Dispatcher struct {
	accounts      AccountSource
	billing       BillingEventSource
	generator     Generator
	plugins       []Plugin
	repo          invoiceRepo.InvoiceRepository
	subscriptions SubscriptionService
	notifier      Notifier
	scheduler     Scheduler
	bus           outbox.EventBus
	locker        utils.Locker
	lockAttempts  int
	log           *zap.Logger
}

// DispatcherDeps bundles the dispatcher's collaborators.
type DispatcherDeps struct {
	Accounts      AccountSource
	Billing       BillingEventSource
	Generator     Generator
	Plugins       []Plugin
	Repo          invoiceRepo.InvoiceRepository
	Subscriptions SubscriptionService
	Notifier      Notifier
	Scheduler     Scheduler
	Bus           outbox.EventBus
	Locker        utils.Locker
	LockAttempts  int
	Log           *zap.Logger
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		accounts:      deps.Accounts,
		billing:       deps.Billing,
		generator:     deps.Generator,
		plugins:       deps.Plugins,
		repo:          deps.Repo,
		subscriptions: deps.Subscriptions,
		notifier:      deps.Notifier,
		scheduler:     deps.Scheduler,
		bus:           deps.Bus,
		locker:        deps.Locker,
		lockAttempts:  deps.LockAttempts,
		log:           deps.Log,
	}
}

// ProcessSubscription resolves the subscription's owning account and runs a
// dispatch cycle for it.
func (d *Dispatcher) ProcessSubscription(ctx context.Context, subscriptionID uuid.UUID, targetTime time.Time, callCtx models.CallContext) (DispatchResult, error) {
	accountID, err := d.subscriptions.AccountForSubscription(ctx, subscriptionID)
	if err != nil {
		return DispatchResult{}, err
	}
	return d.ProcessAccount(ctx, accountID, targetTime, nil, callCtx)
}

// ProcessAccount runs one invoice dispatch cycle. Failing to take the account
// lock is not an error: the result is tagged OutcomeLockFailed and the caller
// retries later. Collaborator failures are surfaced.
func (d *Dispatcher) ProcessAccount(ctx context.Context, accountID uuid.UUID, targetTime time.Time, dryRun *models.DryRunArguments, callCtx models.CallContext) (DispatchResult, error) {
	lock, err := d.locker.TryAcquire(ctx, utils.LockerAccountInvoicePayments, accountID.String(), d.lockAttempts)
	if err != nil {
		if errors.Is(err, utils.ErrLockFailed) {
			d.log.Warn("could not lock account for invoice dispatch",
				zap.String("accountID", accountID.String()))
			return DispatchResult{Outcome: OutcomeLockFailed}, nil
		}
		return DispatchResult{}, err
	}
	defer lock.Release(ctx)

	return d.processAccountWithLock(ctx, accountID, targetTime, dryRun, callCtx)
}

func (d *Dispatcher) processAccountWithLock(ctx context.Context, accountID uuid.UUID, targetTime time.Time, dryRun *models.DryRunArguments, callCtx models.CallContext) (DispatchResult, error) {
	internalCtx := callCtx.Internal(accountID)

	account, err := d.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return DispatchResult{}, err
	}

	events, err := d.billing.EventsForAccount(ctx, accountID, dryRun)
	if err != nil {
		return DispatchResult{}, err
	}
	if events.AutoInvoiceOff {
		d.log.Info("auto-invoicing is off, skipping account",
			zap.String("accountID", accountID.String()))
		return DispatchResult{Outcome: OutcomeAutoInvoiceOff}, nil
	}
	if events.Empty() {
		// No billing events means no computable target date.
		return d.nothingToInvoice(ctx, accountID, targetTime, dryRun, internalCtx)
	}

	targetDate, err := localTargetDate(targetTime, account.TimeZone)
	if err != nil {
		return DispatchResult{}, err
	}

	existing, err := d.repo.GetInvoicesByAccount(ctx, accountID)
	if err != nil {
		return DispatchResult{}, err
	}

	inv, err := d.generator.Generate(ctx, accountID, events, existing, targetDate, account.Currency)
	if err != nil {
		return DispatchResult{}, err
	}
	if inv == nil {
		return d.nothingToInvoice(ctx, accountID, targetTime, dryRun, internalCtx)
	}

	cba, err := d.repo.ComputeCBA(ctx, inv)
	if err != nil {
		return DispatchResult{}, err
	}
	if cba != nil {
		inv.AddItem(*cba)
	}

	for _, plugin := range d.plugins {
		items, err := plugin.AdditionalItems(ctx, inv)
		if err != nil {
			return DispatchResult{}, err
		}
		inv.AddItems(items)
	}

	ownItems, adjustedIDs := splitAdjustments(inv)
	isRealInvoice := len(ownItems) > 0

	if dryRun != nil {
		return DispatchResult{Outcome: OutcomeGenerated, Invoice: inv}, nil
	}

	callbackDates := createFutureNotificationDates(inv, events.Usages)
	busEvents := d.buildEvents(inv, isRealInvoice, adjustedIDs, internalCtx)

	if err := d.repo.CreateInvoice(ctx, inv, callbackDates, isRealInvoice, busEvents); err != nil {
		return DispatchResult{}, err
	}

	d.scheduleCallbacks(ctx, accountID, callbackDates)

	for subscriptionID, through := range chargedThroughDates(inv.Items) {
		if err := d.subscriptions.UpdateChargedThrough(ctx, subscriptionID, through); err != nil {
			return DispatchResult{}, err
		}
	}

	d.maybeNotify(ctx, account, inv, isRealInvoice, internalCtx)

	return DispatchResult{Outcome: OutcomeGenerated, Invoice: inv}, nil
}

// nothingToInvoice emits the null-invoice event (outside dry runs) and tags
// the cycle accordingly.
func (d *Dispatcher) nothingToInvoice(ctx context.Context, accountID uuid.UUID, targetTime time.Time, dryRun *models.DryRunArguments, internalCtx models.InternalCallContext) (DispatchResult, error) {
	if dryRun == nil {
		event := models.NullInvoiceEvent{
			AccountID:     accountID,
			ProcessedDate: targetTime,
			Metadata:      models.MetadataFrom(internalCtx),
		}
		if err := d.bus.Post(ctx, event); err != nil {
			d.log.Warn("failed to post null invoice event",
				zap.String("accountID", accountID.String()),
				zap.Error(err))
		}
	}
	return DispatchResult{Outcome: OutcomeNothingToInvoice}, nil
}

// splitAdjustments separates the invoice's own items from adjustments of
// previously persisted invoices, returning the distinct foreign invoice ids
// in sorted order.
func splitAdjustments(inv *models.Invoice) ([]models.InvoiceItem, []uuid.UUID) {
	var ownItems []models.InvoiceItem
	foreign := make(map[uuid.UUID]bool)
	for _, item := range inv.Items {
		if item.InvoiceID == inv.ID {
			ownItems = append(ownItems, item)
		} else {
			foreign[item.InvoiceID] = true
		}
	}

	ids := make([]uuid.UUID, 0, len(foreign))
	for id := range foreign {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ownItems, ids
}

// buildEvents produces one creation event when the invoice carries its own
// items, plus one adjustment event per foreign invoice touched.
func (d *Dispatcher) buildEvents(inv *models.Invoice, isRealInvoice bool, adjustedIDs []uuid.UUID, internalCtx models.InternalCallContext) []models.BusEvent {
	meta := models.MetadataFrom(internalCtx)

	var events []models.BusEvent
	if isRealInvoice {
		events = append(events, models.InvoiceCreationEvent{
			InvoiceID: inv.ID,
			AccountID: inv.AccountID,
			Balance:   inv.Balance(),
			Currency:  inv.Currency,
			Metadata:  meta,
		})
	}
	for _, id := range adjustedIDs {
		events = append(events, models.InvoiceAdjustmentEvent{
			InvoiceID: id,
			AccountID: inv.AccountID,
			Metadata:  meta,
		})
	}
	return events
}

// scheduleCallbacks queues future dispatch runs. The dates are already
// persisted with the invoice, so a scheduling failure is only logged.
func (d *Dispatcher) scheduleCallbacks(ctx context.Context, accountID uuid.UUID, callbackDates map[uuid.UUID][]time.Time) {
	for _, dates := range callbackDates {
		for _, at := range dates {
			if err := d.scheduler.ScheduleInvoiceRun(ctx, accountID, at); err != nil {
				d.log.Warn("failed to schedule invoice callback",
					zap.String("accountID", accountID.String()),
					zap.Time("at", at),
					zap.Error(err))
			}
		}
	}
}

// maybeNotify reloads the persisted invoice (for its assigned number) and
// notifies the account owner. Notification failures never fail the dispatch.
func (d *Dispatcher) maybeNotify(ctx context.Context, account *models.Account, inv *models.Invoice, isRealInvoice bool, internalCtx models.InternalCallContext) {
	if !account.NotifiedForInvoices || !isRealInvoice {
		return
	}
	persisted, err := d.repo.GetByID(ctx, inv.ID)
	if err != nil {
		d.log.Warn("failed to reload invoice for notification",
			zap.String("invoiceID", inv.ID.String()),
			zap.Error(err))
		return
	}
	if err := d.notifier.Notify(ctx, account, persisted, internalCtx); err != nil {
		d.log.Warn("failed to notify account of new invoice",
			zap.String("accountID", account.ID.String()),
			zap.String("invoiceID", inv.ID.String()),
			zap.Error(err))
	}
}
