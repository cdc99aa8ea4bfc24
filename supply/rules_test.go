package supply

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func features(inventory int, projected string, daysToExpiry *int) SiteFeatures {
	return SiteFeatures{
		SiteID:             "SITE-001",
		Projected30dDemand: decimal.RequireFromString(projected),
		CurrentInventory:   inventory,
		DaysToExpiry:       daysToExpiry,
		WeeklyDispenseKits: decimal.RequireFromString(projected).Mul(seven).Div(thirty),
	}
}

func intPtr(n int) *int { return &n }

func TestDecideDemandExceedsSafetyStock(t *testing.T) {
	// GIVEN inventory 50 against a projected demand of 100
	f := features(50, "100", nil)

	// WHEN the policy runs with the default 1.2 multiplier
	d := Decide(f, Default())

	// THEN resupply ceil(100*1.2 - 50) = 70 kits
	assert.Equal(t, ActionResupply, d.Action)
	assert.Equal(t, 70, d.Quantity)
	assert.Contains(t, d.Reason, "70")
}

func TestDecideSufficientInventory(t *testing.T) {
	// GIVEN inventory 200, demand 50, expiry comfortably out at 90 days
	f := features(200, "50", intPtr(90))

	d := Decide(f, Default())

	assert.Equal(t, ActionNoResupply, d.Action)
	assert.Equal(t, 0, d.Quantity)
}

func TestDecideExpiryOverridesFullShelf(t *testing.T) {
	// GIVEN a full shelf (500 kits) expiring in 5 days with demand 10
	f := features(500, "10", intPtr(5))

	// WHEN the policy runs
	d := Decide(f, Default())

	// THEN expiry forces resupply at the minimum order quantity
	assert.Equal(t, ActionResupply, d.Action)
	assert.Equal(t, 10, d.Quantity)
	assert.Contains(t, d.Reason, "expiry")
}

func TestDecideExpiryAtThresholdBoundary(t *testing.T) {
	cfg := Default()

	// Exactly at the threshold still triggers.
	d := Decide(features(500, "10", intPtr(cfg.ExpiryThresholdDays)), cfg)
	assert.Equal(t, ActionResupply, d.Action)

	// One day past it does not.
	d = Decide(features(500, "10", intPtr(cfg.ExpiryThresholdDays+1)), cfg)
	assert.Equal(t, ActionNoResupply, d.Action)
}

func TestDecideExpiredStock(t *testing.T) {
	// Negative days (already expired) is under the threshold.
	d := Decide(features(500, "10", intPtr(-3)), Default())
	assert.Equal(t, ActionResupply, d.Action)
}

func TestDecideUnknownExpirySkipsExpiryRule(t *testing.T) {
	// GIVEN no expiry information at all
	f := features(500, "10", nil)

	// THEN only the demand comparison applies
	d := Decide(f, Default())
	assert.Equal(t, ActionNoResupply, d.Action)
}

func TestDecideSafetyStockBoundaryIsStrict(t *testing.T) {
	// GIVEN projected demand exactly equal to inventory * multiplier
	f := features(100, "120", nil)

	d := Decide(f, Default())

	// THEN the comparison is strictly greater-than
	assert.Equal(t, ActionNoResupply, d.Action)
}

func TestDecideMinimumOrderFloor(t *testing.T) {
	// GIVEN a shortfall of only 7 kits: ceil(10*1.2 - 5) = 7
	f := features(5, "10", nil)

	d := Decide(f, Default())

	// THEN the order is floored at the minimum order quantity
	assert.Equal(t, ActionResupply, d.Action)
	assert.Equal(t, 10, d.Quantity)
}

func TestDecideQuantityNeverNegative(t *testing.T) {
	// Expiry-forced resupply with inventory far above the safety target.
	d := Decide(features(1000, "10", intPtr(2)), Default())
	assert.Equal(t, 10, d.Quantity, "falls back to the minimum order")
}

func TestDecideZeroDispenseHistoryNote(t *testing.T) {
	// GIVEN a site with no dispense history at all
	f := SiteFeatures{SiteID: "SITE-001", Projected30dDemand: decimal.Zero, CurrentInventory: 20}

	d := Decide(f, Default())

	assert.Equal(t, ActionNoResupply, d.Action)
	assert.Contains(t, d.Reason, "low-confidence")
}

func TestDecideIsDeterministic(t *testing.T) {
	f := features(50, "100", intPtr(45))
	cfg := Default()

	first := Decide(f, cfg)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Decide(f, cfg))
	}
}
