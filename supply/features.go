/*
features.go - Per-site feature derivation

PURPOSE:
  Derives the numeric signals the rules engine consumes from one site's
  raw records. Deterministic and stateless: identical records plus an
  identical reference date always yield identical features.

FEATURES:
  weekly_dispense_kits   trailing dispense rate (kits/week)
  projected_30d_demand   weekly rate scaled to 30 days, enrollment-adjusted
  days_to_expiry         soonest expiry minus reference date (nil = unknown)
  current_inventory      summed across snapshots
  urgency_score          max(shortfall ratio, expiry proximity)

WINDOWING:
  The dispense rate uses the trailing 30 days before the reference date.
  When the window is empty but older records exist (a stale upload), the
  full history is used instead so the rate does not silently drop to zero.

ERROR CONDITIONS:
  Malformed records (zero dates, negative quantities) fail with a
  DataQualityError scoped to this site. The orchestrator catches it and
  reports per-site rather than aborting the batch.

SEE ALSO:
  - rules.go: consumes SiteFeatures
  - enrollment.go: enrollment-driven demand adjustment
*/
package supply

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// dispenseWindowDays is the trailing window for the weekly dispense rate.
const dispenseWindowDays = 30

var (
	seven  = decimal.NewFromInt(7)
	thirty = decimal.NewFromInt(30)
	one    = decimal.NewFromInt(1)
)

// ComputeFeatures derives SiteFeatures for one site from its raw records.
// referenceDate anchors every date arithmetic; it is never read from the
// wall clock here.
func ComputeFeatures(
	site Site,
	dispense []DispenseRecord,
	inventory []InventoryRecord,
	enrollment []EnrollmentRecord,
	cfg Config,
	referenceDate time.Time,
) (SiteFeatures, error) {
	f := SiteFeatures{
		SiteID:          site.ID,
		SiteName:        site.Name,
		Region:          site.Region,
		EnrollmentTrend: TrendUnknown,
		ScreenFailRate:  defaultScreenFailRate,
	}
	if f.SiteName == "" {
		f.SiteName = string(site.ID)
	}

	weekly, err := weeklyDispenseRate(site.ID, dispense, referenceDate)
	if err != nil {
		return SiteFeatures{}, err
	}
	f.WeeklyDispenseKits = weekly

	// Base 30-day projection from dispense history, 2dp.
	base := weekly.Mul(thirty).Div(seven).Round(2)

	// Raise to the enrollment-implied demand when prediction is higher.
	pred, err := PredictEnrollment(site.ID, enrollment)
	if err != nil {
		return SiteFeatures{}, err
	}
	f.Predicted30dEnrollment = pred.Predicted30d
	f.AvgWeeklyEnrollment = pred.AvgWeekly
	f.EnrollmentTrend = pred.Trend
	f.Projected30dDemand = AdjustDemandForEnrollment(base, pred.Predicted30d, f.ScreenFailRate)

	inv, daysToExpiry, err := inventoryPosition(site.ID, inventory, referenceDate)
	if err != nil {
		return SiteFeatures{}, err
	}
	f.CurrentInventory = inv
	f.DaysToExpiry = daysToExpiry

	f.UrgencyScore = urgencyScore(f.Projected30dDemand, inv, daysToExpiry, cfg.ExpiryWeight())
	return f, nil
}

// weeklyDispenseRate sums kits over the trailing window and scales to a
// weekly rate. No dispense history yields 0, not an error; the report's
// confidence caveat lives in the decision reason.
func weeklyDispenseRate(siteID SiteID, records []DispenseRecord, referenceDate time.Time) (decimal.Decimal, error) {
	if len(records) == 0 {
		return decimal.Zero, nil
	}

	windowStart := referenceDate.AddDate(0, 0, -dispenseWindowDays)
	inWindow := make([]DispenseRecord, 0, len(records))
	for _, r := range records {
		if r.DispenseDate.IsZero() {
			return decimal.Zero, &DataQualityError{SiteID: siteID, Field: "dispense_date", Detail: "missing or malformed date"}
		}
		if r.KitsDispensed < 0 {
			return decimal.Zero, &DataQualityError{SiteID: siteID, Field: "kits_dispensed", Detail: "negative quantity"}
		}
		if !r.DispenseDate.Before(windowStart) && !r.DispenseDate.After(referenceDate) {
			inWindow = append(inWindow, r)
		}
	}
	if len(inWindow) == 0 {
		// Stale upload: fall back to the full history.
		inWindow = records
	}

	sort.Slice(inWindow, func(i, j int) bool {
		return inWindow[i].DispenseDate.Before(inWindow[j].DispenseDate)
	})

	total := 0
	for _, r := range inWindow {
		total += r.KitsDispensed
	}

	first := inWindow[0].DispenseDate
	last := inWindow[len(inWindow)-1].DispenseDate
	spanDays := int(last.Sub(first).Hours()/24) + 1
	if spanDays < 1 {
		spanDays = 1
	}

	return decimal.NewFromInt(int64(total)).
		Mul(seven).
		Div(decimal.NewFromInt(int64(spanDays))), nil
}

// inventoryPosition sums snapshots and resolves the governing expiry.
// With multiple snapshots the soonest expiry wins; with no expiry at all
// the feature is nil and every expiry-driven rule is skipped.
func inventoryPosition(siteID SiteID, records []InventoryRecord, referenceDate time.Time) (int, *int, error) {
	total := 0
	var soonest *time.Time
	for _, r := range records {
		if r.CurrentInventory < 0 {
			return 0, nil, &DataQualityError{SiteID: siteID, Field: "current_inventory", Detail: "negative quantity"}
		}
		total += r.CurrentInventory
		if r.ExpiryDate != nil {
			if r.ExpiryDate.IsZero() {
				return 0, nil, &DataQualityError{SiteID: siteID, Field: "expiry_date", Detail: "missing or malformed date"}
			}
			if soonest == nil || r.ExpiryDate.Before(*soonest) {
				soonest = r.ExpiryDate
			}
		}
	}
	if soonest == nil {
		return total, nil, nil
	}
	days := int(soonest.Sub(referenceDate).Hours() / 24)
	return total, &days, nil
}

// urgencyScore combines the inventory shortfall ratio with expiry
// proximity. Monotonically increasing as inventory shrinks or expiry
// nears, bounded below by 0.
func urgencyScore(projected decimal.Decimal, inventory int, daysToExpiry *int, expiryWeight decimal.Decimal) decimal.Decimal {
	denom := decimal.NewFromInt(int64(inventory))
	if denom.LessThan(one) {
		denom = one
	}
	score := projected.Div(denom)

	if daysToExpiry != nil {
		days := decimal.NewFromInt(int64(*daysToExpiry))
		if days.LessThan(one) {
			days = one
		}
		if expiryTerm := expiryWeight.Div(days); expiryTerm.GreaterThan(score) {
			score = expiryTerm
		}
	}
	if score.IsNegative() {
		return decimal.Zero
	}
	return score
}
