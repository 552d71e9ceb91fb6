package invoice

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	invoiceRepo "corebill/database/repository/invoice"
	"corebill/models"
	"corebill/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAccounts struct {
	accounts map[uuid.UUID]*models.Account
}

func (f *fakeAccounts) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, errors.New("account not found")
	}
	return account, nil
}

type fakeBilling struct {
	set     *models.BillingEventSet
	err     error
	calls   int
	dryRuns []*models.DryRunArguments
}

func (f *fakeBilling) EventsForAccount(ctx context.Context, accountID uuid.UUID, dryRun *models.DryRunArguments) (*models.BillingEventSet, error) {
	f.calls++
	f.dryRuns = append(f.dryRuns, dryRun)
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

type fakeGenerator struct {
	invoice       *models.Invoice
	err           error
	calls         int
	gotTargetDate time.Time
}

func (f *fakeGenerator) Generate(ctx context.Context, accountID uuid.UUID, events *models.BillingEventSet, existing []models.Invoice, targetDate time.Time, currency models.Currency) (*models.Invoice, error) {
	f.calls++
	f.gotTargetDate = targetDate
	return f.invoice, f.err
}

type fakeInvoiceRepo struct {
	existing []models.Invoice
	cba      *models.InvoiceItem

	created       *models.Invoice
	createdDates  map[uuid.UUID][]time.Time
	createdReal   bool
	createdEvents []models.BusEvent
}

func (f *fakeInvoiceRepo) CreateInvoice(ctx context.Context, invoice *models.Invoice, callbackDates map[uuid.UUID][]time.Time, isRealInvoice bool, events []models.BusEvent) error {
	f.created = invoice
	f.createdDates = callbackDates
	f.createdReal = isRealInvoice
	f.createdEvents = events
	return nil
}

func (f *fakeInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	if f.created != nil && f.created.ID == id {
		out := *f.created
		out.InvoiceNumber = 42
		return &out, nil
	}
	return nil, invoiceRepo.ErrNotFound
}

func (f *fakeInvoiceRepo) GetInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Invoice, error) {
	return f.existing, nil
}

func (f *fakeInvoiceRepo) ComputeCBA(ctx context.Context, invoice *models.Invoice) (*models.InvoiceItem, error) {
	return f.cba, nil
}

type fakeItemPlugin struct {
	name  string
	items []models.InvoiceItem
	err   error
}

func (f *fakeItemPlugin) Name() string { return f.name }

func (f *fakeItemPlugin) AdditionalItems(ctx context.Context, invoice *models.Invoice) ([]models.InvoiceItem, error) {
	return f.items, f.err
}

type fakeSubscriptions struct {
	owners         map[uuid.UUID]uuid.UUID
	chargedThrough map[uuid.UUID]time.Time
}

func (f *fakeSubscriptions) AccountForSubscription(ctx context.Context, subscriptionID uuid.UUID) (uuid.UUID, error) {
	accountID, ok := f.owners[subscriptionID]
	if !ok {
		return uuid.Nil, errors.New("subscription not found")
	}
	return accountID, nil
}

func (f *fakeSubscriptions) UpdateChargedThrough(ctx context.Context, subscriptionID uuid.UUID, chargedThrough time.Time) error {
	if f.chargedThrough == nil {
		f.chargedThrough = make(map[uuid.UUID]time.Time)
	}
	f.chargedThrough[subscriptionID] = chargedThrough
	return nil
}

type fakeNotifier struct {
	invoices []*models.Invoice
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, account *models.Account, invoice *models.Invoice, callCtx models.InternalCallContext) error {
	f.invoices = append(f.invoices, invoice)
	return f.err
}

type fakeScheduler struct {
	scheduled []time.Time
	err       error
}

func (f *fakeScheduler) ScheduleInvoiceRun(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, at)
	return nil
}

type fakeBus struct {
	posted []models.BusEvent
	err    error
}

func (f *fakeBus) Post(ctx context.Context, event models.BusEvent) error {
	if f.err != nil {
		return f.err
	}
	f.posted = append(f.posted, event)
	return nil
}

type fakeLock struct {
	releases int
}

func (l *fakeLock) Release(ctx context.Context) { l.releases++ }

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

// fixture wires a dispatcher against fakes, with one account that has billing
// events and wants invoice notifications.
type fixture struct {
	account    *models.Account
	accounts   *fakeAccounts
	billing    *fakeBilling
	generator  *fakeGenerator
	repo       *fakeInvoiceRepo
	subs       *fakeSubscriptions
	notifier   *fakeNotifier
	scheduler  *fakeScheduler
	bus        *fakeBus
	locker     *fakeLocker
	dispatcher *Dispatcher
	plugins    []Plugin
}

var targetTime = time.Date(2026, 4, 15, 10, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	account := &models.Account{
		ID:                  uuid.New(),
		Currency:            models.CurrencyUSD,
		TimeZone:            "UTC",
		NotifiedForInvoices: true,
	}
	f := &fixture{
		account:   account,
		accounts:  &fakeAccounts{accounts: map[uuid.UUID]*models.Account{account.ID: account}},
		billing:   &fakeBilling{set: &models.BillingEventSet{Events: []models.BillingEvent{recurringEvent(uuid.New(), 1, 30, 20)}}},
		generator: &fakeGenerator{},
		repo:      &fakeInvoiceRepo{},
		subs:      &fakeSubscriptions{},
		notifier:  &fakeNotifier{},
		scheduler: &fakeScheduler{},
		bus:       &fakeBus{},
		locker:    &fakeLocker{},
	}
	f.rebuild()
	return f
}

func (f *fixture) rebuild() {
	f.dispatcher = NewDispatcher(DispatcherDeps{
		Accounts:      f.accounts,
		Billing:       f.billing,
		Generator:     f.generator,
		Plugins:       f.plugins,
		Repo:          f.repo,
		Subscriptions: f.subs,
		Notifier:      f.notifier,
		Scheduler:     f.scheduler,
		Bus:           f.bus,
		Locker:        f.locker,
		LockAttempts:  3,
		Log:           zap.NewNop(),
	})
}

// ownInvoice builds a generator result invoice carrying its own recurring item.
func (f *fixture) ownInvoice(subscriptionID uuid.UUID) *models.Invoice {
	inv := &models.Invoice{
		ID:         uuid.New(),
		AccountID:  f.account.ID,
		Currency:   models.CurrencyUSD,
		TargetDate: day(15),
	}
	inv.AddItem(models.InvoiceItem{
		ID:             uuid.New(),
		InvoiceID:      inv.ID,
		Type:           models.ItemRecurring,
		SubscriptionID: &subscriptionID,
		StartDate:      day(1),
		EndDate:        datePtr(day(30)),
		Amount:         decimal.NewFromInt(20),
		Currency:       models.CurrencyUSD,
	})
	return inv
}

func TestProcessAccountLockContention(t *testing.T) {
	f := newFixture(t)
	f.locker.err = fmt.Errorf("%w: held elsewhere", utils.ErrLockFailed)
	f.rebuild()

	result, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, nil, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeLockFailed, result.Outcome)
	assert.Nil(t, result.Invoice)
	assert.Zero(t, f.billing.calls)
}

func TestProcessAccountLockerHardError(t *testing.T) {
	f := newFixture(t)
	f.locker.err = errors.New("redis down")
	f.rebuild()

	_, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, nil, models.CallContext{})
	require.Error(t, err)
	assert.Zero(t, f.billing.calls)
}

func TestProcessAccountAutoInvoiceOff(t *testing.T) {
	f := newFixture(t)
	f.billing.set.AutoInvoiceOff = true

	result, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, nil, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAutoInvoiceOff, result.Outcome)
	assert.Zero(t, f.generator.calls)
	assert.Empty(t, f.bus.posted)
	assert.Equal(t, 1, f.locker.lock.releases)
}

func TestProcessAccountNoBillingEvents(t *testing.T) {
	f := newFixture(t)
	f.billing.set = &models.BillingEventSet{}

	result, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, nil, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingToInvoice, result.Outcome)
	assert.Zero(t, f.generator.calls)

	require.Len(t, f.bus.posted, 1)
	nullEvent, ok := f.bus.posted[0].(models.NullInvoiceEvent)
	require.True(t, ok)
	assert.Equal(t, f.account.ID, nullEvent.AccountID)
	assert.Equal(t, targetTime, nullEvent.ProcessedDate)
}

func TestProcessAccountGeneratorProducesNothing(t *testing.T) {
	f := newFixture(t)
	f.generator.invoice = nil

	result, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, nil, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingToInvoice, result.Outcome)
	assert.Equal(t, 1, f.generator.calls)
	assert.Nil(t, f.repo.created)

	require.Len(t, f.bus.posted, 1)
	assert.Equal(t, models.EventNullInvoice, f.bus.posted[0].Kind())
}

func TestProcessAccountGeneratesInvoice(t *testing.T) {
	f := newFixture(t)
	subscriptionID := uuid.New()
	inv := f.ownInvoice(subscriptionID)
	f.generator.invoice = inv

	f.repo.cba = &models.InvoiceItem{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Type:      models.ItemCBA,
		StartDate: day(15),
		Amount:    decimal.NewFromInt(-5),
		Currency:  models.CurrencyUSD,
	}
	f.plugins = []Plugin{&fakeItemPlugin{name: "tax", items: []models.InvoiceItem{{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Type:      models.ItemFixed,
		StartDate: day(15),
		Amount:    decimal.NewFromInt(2),
		Currency:  models.CurrencyUSD,
	}}}}
	f.rebuild()

	result, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, nil, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, result.Outcome)
	require.NotNil(t, result.Invoice)
	assert.Equal(t, day(15), f.generator.gotTargetDate)

	// Generated item, CBA adjustment and the plugin's tax line all persisted.
	require.NotNil(t, f.repo.created)
	assert.Len(t, f.repo.created.Items, 3)
	assert.True(t, f.repo.createdReal)

	require.Len(t, f.repo.createdEvents, 1)
	creation, ok := f.repo.createdEvents[0].(models.InvoiceCreationEvent)
	require.True(t, ok)
	assert.Equal(t, inv.ID, creation.InvoiceID)
	assert.True(t, creation.Balance.Equal(decimal.NewFromInt(17)))

	assert.Equal(t, []time.Time{day(30)}, f.scheduler.scheduled)
	assert.Equal(t, day(30), f.subs.chargedThrough[subscriptionID])

	require.Len(t, f.notifier.invoices, 1)
	assert.Equal(t, int64(42), f.notifier.invoices[0].InvoiceNumber)

	assert.Equal(t, 1, f.locker.lock.releases)
}

func TestProcessAccountAdjustmentsOnly(t *testing.T) {
	f := newFixture(t)
	foreignA := uuid.New()
	foreignB := uuid.New()
	subscriptionID := uuid.New()

	inv := &models.Invoice{
		ID:         uuid.New(),
		AccountID:  f.account.ID,
		Currency:   models.CurrencyUSD,
		TargetDate: day(15),
	}
	inv.AddItems([]models.InvoiceItem{
		{ID: uuid.New(), InvoiceID: foreignA, Type: models.ItemRecurring, SubscriptionID: &subscriptionID, StartDate: day(1), Amount: decimal.NewFromInt(-10), Currency: models.CurrencyUSD},
		{ID: uuid.New(), InvoiceID: foreignA, Type: models.ItemRecurring, SubscriptionID: &subscriptionID, StartDate: day(5), Amount: decimal.NewFromInt(-2), Currency: models.CurrencyUSD},
		{ID: uuid.New(), InvoiceID: foreignB, Type: models.ItemRecurring, SubscriptionID: &subscriptionID, StartDate: day(1), Amount: decimal.NewFromInt(-3), Currency: models.CurrencyUSD},
	})
	f.generator.invoice = inv

	result, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, nil, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, result.Outcome)

	// No own items: the shell invoice gets no number and no creation event,
	// only one adjustment event per touched invoice.
	assert.False(t, f.repo.createdReal)
	require.Len(t, f.repo.createdEvents, 2)
	touched := make(map[uuid.UUID]bool)
	for _, event := range f.repo.createdEvents {
		adjustment, ok := event.(models.InvoiceAdjustmentEvent)
		require.True(t, ok)
		touched[adjustment.InvoiceID] = true
	}
	assert.True(t, touched[foreignA])
	assert.True(t, touched[foreignB])

	assert.Empty(t, f.notifier.invoices)
}

func TestProcessAccountDryRun(t *testing.T) {
	f := newFixture(t)
	subscriptionID := uuid.New()
	f.generator.invoice = f.ownInvoice(subscriptionID)

	result, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, &models.DryRunArguments{}, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, result.Outcome)
	require.NotNil(t, result.Invoice)

	// Nothing persisted, scheduled, posted or notified.
	assert.Nil(t, f.repo.created)
	assert.Empty(t, f.scheduler.scheduled)
	assert.Empty(t, f.bus.posted)
	assert.Empty(t, f.subs.chargedThrough)
	assert.Empty(t, f.notifier.invoices)
}

func TestProcessAccountDryRunNothingToBill(t *testing.T) {
	f := newFixture(t)
	f.billing.set = &models.BillingEventSet{}

	result, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, &models.DryRunArguments{}, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingToInvoice, result.Outcome)
	assert.Empty(t, f.bus.posted, "dry runs emit no events")
}

func TestProcessAccountNotificationRespectsOptOut(t *testing.T) {
	f := newFixture(t)
	f.account.NotifiedForInvoices = false
	f.generator.invoice = f.ownInvoice(uuid.New())

	result, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, nil, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, result.Outcome)
	require.NotNil(t, f.repo.created)
	assert.Empty(t, f.notifier.invoices)
}

func TestProcessAccountBillingErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	f.billing.err = errors.New("billing side down")

	_, err := f.dispatcher.ProcessAccount(context.Background(), f.account.ID, targetTime, nil, models.CallContext{})
	require.Error(t, err)
	assert.Equal(t, 1, f.locker.lock.releases, "lock released on failure")
}

func TestProcessSubscription(t *testing.T) {
	f := newFixture(t)
	subscriptionID := uuid.New()
	f.subs.owners = map[uuid.UUID]uuid.UUID{subscriptionID: f.account.ID}
	f.billing.set = &models.BillingEventSet{}

	result, err := f.dispatcher.ProcessSubscription(context.Background(), subscriptionID, targetTime, models.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingToInvoice, result.Outcome)
	assert.Equal(t, []string{f.account.ID.String()}, f.locker.acquired)
}

func TestProcessSubscriptionUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatcher.ProcessSubscription(context.Background(), uuid.New(), targetTime, models.CallContext{})
	require.Error(t, err)
	assert.Empty(t, f.locker.acquired)
}

func TestLocalTargetDate(t *testing.T) {
	cases := []struct {
		name     string
		instant  time.Time
		timeZone string
		want     time.Time
	}{
		{
			name:     "utc stays on the same day",
			instant:  time.Date(2026, 4, 15, 23, 30, 0, 0, time.UTC),
			timeZone: "UTC",
			want:     day(15),
		},
		{
			name:     "new york evening is still the previous local day",
			instant:  time.Date(2026, 4, 15, 2, 0, 0, 0, time.UTC),
			timeZone: "America/New_York",
			want:     day(14),
		},
		{
			name:     "tokyo morning is already the next local day",
			instant:  time.Date(2026, 4, 15, 22, 0, 0, 0, time.UTC),
			timeZone: "Asia/Tokyo",
			want:     day(16),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := localTargetDate(tc.instant, tc.timeZone)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := localTargetDate(targetTime, "Not/AZone")
	require.Error(t, err)
}
