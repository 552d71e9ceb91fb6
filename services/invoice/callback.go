// File: services/invoice/callback.go
package invoice

import (
	"sort"
	"time"

	"corebill/models"

	"github.com/google/uuid"
)

// usageKey identifies one metered dimension of one subscription.
type usageKey struct {
	subscriptionID uuid.UUID
	usageName      string
}

// createFutureNotificationDates computes the per-subscription dates at which
// the account must be invoiced again because of items on this invoice.
//
// RECURRING items with an end date and a non-negative amount schedule a
// callback at that end date. USAGE items schedule one callback per
// (subscription, usage) pair at the pair's latest end date, advanced by the
// usage's billing period when it bills in arrear.
func createFutureNotificationDates(invoice *models.Invoice, usages map[string]models.Usage) map[uuid.UUID][]time.Time {
	dates := make(map[uuid.UUID]map[time.Time]bool)
	add := func(subscriptionID uuid.UUID, at time.Time) {
		if dates[subscriptionID] == nil {
			dates[subscriptionID] = make(map[time.Time]bool)
		}
		dates[subscriptionID][at] = true
	}

	maxUsageEnd := make(map[usageKey]time.Time)
	for _, item := range invoice.Items {
		if item.SubscriptionID == nil || item.EndDate == nil {
			continue
		}
		switch item.Type {
		case models.ItemRecurring:
			if !item.Amount.IsNegative() {
				add(*item.SubscriptionID, *item.EndDate)
			}
		case models.ItemUsage:
			key := usageKey{*item.SubscriptionID, item.UsageName}
			if item.EndDate.After(maxUsageEnd[key]) {
				maxUsageEnd[key] = *item.EndDate
			}
		}
	}

	for key, end := range maxUsageEnd {
		at := end
		if usage, ok := usages[key.usageName]; ok && usage.BillingMode == models.BillingInArrear {
			at = end.AddDate(0, usage.BillingPeriodMonths, 0)
		}
		add(key.subscriptionID, at)
	}

	out := make(map[uuid.UUID][]time.Time, len(dates))
	for subscriptionID, set := range dates {
		for at := range set {
			out[subscriptionID] = append(out[subscriptionID], at)
		}
		sortTimes(out[subscriptionID])
	}
	return out
}

// chargedThroughDates computes, per subscription, the latest of end date (or
// start date when there is no end) across the FIXED and RECURRING items of
// both collections.
func chargedThroughDates(itemSets ...[]models.InvoiceItem) map[uuid.UUID]time.Time {
	out := make(map[uuid.UUID]time.Time)
	for _, items := range itemSets {
		for _, item := range items {
			if item.SubscriptionID == nil {
				continue
			}
			if item.Type != models.ItemFixed && item.Type != models.ItemRecurring {
				continue
			}
			through := item.StartDate
			if item.EndDate != nil {
				through = *item.EndDate
			}
			if through.After(out[*item.SubscriptionID]) {
				out[*item.SubscriptionID] = through
			}
		}
	}
	return out
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
