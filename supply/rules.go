/*
rules.go - Deterministic resupply decision policy

PURPOSE:
  Maps one site's features to a resupply decision. Pure function of
  (features, config): no wall clock, no I/O, no shared state. This is the
  property that makes the policy testable with no LLM in the loop, and
  what makes the decision authoritative over any LLM output.

PRECEDENCE:
  1. Known expiry at or under the threshold forces resupply regardless of
     inventory level (expiry risk dominates).
  2. Projected demand above inventory times the safety multiplier forces
     resupply.
  3. Otherwise no resupply.

QUANTITY:
  max(min_order_quantity, ceil(projected * multiplier - inventory)).

REASONS:
  Templated sentences embedding the literal computed numbers so the
  justification layer can quote them.
*/
package supply

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decide applies the resupply policy to one site's features.
func Decide(f SiteFeatures, cfg Config) ResupplyDecision {
	inventory := decimal.NewFromInt(int64(f.CurrentInventory))
	safetyTarget := f.Projected30dDemand.Mul(cfg.SafetyStock())

	// Expiry precedence: imminent expiry forces replacement even when the
	// shelf looks full.
	if f.DaysToExpiry != nil && *f.DaysToExpiry <= cfg.ExpiryThresholdDays {
		qty := orderQuantity(safetyTarget, inventory, cfg.MinOrderQuantity)
		return ResupplyDecision{
			SiteID:   f.SiteID,
			Action:   ActionResupply,
			Quantity: qty,
			Reason: fmt.Sprintf(
				"Inventory approaching expiry in %d days (threshold %d). Projected 30-day demand is %s kits against %d kits on hand; resupply %d kits to replace expiring stock.",
				*f.DaysToExpiry, cfg.ExpiryThresholdDays, f.Projected30dDemand.String(), f.CurrentInventory, qty),
		}
	}

	if f.Projected30dDemand.GreaterThan(inventory.Mul(cfg.SafetyStock())) {
		qty := orderQuantity(safetyTarget, inventory, cfg.MinOrderQuantity)
		return ResupplyDecision{
			SiteID:   f.SiteID,
			Action:   ActionResupply,
			Quantity: qty,
			Reason: fmt.Sprintf(
				"Projected 30-day demand (%s kits) exceeds safety stock on current inventory (%d kits x %.2f); resupply %d kits.",
				f.Projected30dDemand.String(), f.CurrentInventory, cfg.SafetyStockMultiplier, qty),
		}
	}

	reason := fmt.Sprintf(
		"Current inventory (%d kits) is sufficient for projected 30-day demand (%s kits); no resupply needed.",
		f.CurrentInventory, f.Projected30dDemand.String())
	if f.WeeklyDispenseKits.IsZero() {
		reason += " Note: no dispense history in the trailing window; projection is low-confidence."
	}
	return ResupplyDecision{
		SiteID:   f.SiteID,
		Action:   ActionNoResupply,
		Quantity: 0,
		Reason:   reason,
	}
}

// orderQuantity is ceil(target - inventory), floored at the minimum order.
func orderQuantity(safetyTarget, inventory decimal.Decimal, minOrder int) int {
	qty := int(safetyTarget.Sub(inventory).Ceil().IntPart())
	if qty < minOrder {
		return minOrder
	}
	return qty
}
