/*
depot.go - Depot-to-site allocation

PURPOSE:
  Greedy allocation of depot inventory against the batch's resupply
  quantities. Sites with the largest net demand are served first; ties
  break deterministically by site id. This is a planning aid layered on
  top of the per-site decisions, not part of them.
*/
package supply

import "sort"

// DepotAllocation is one planned depot-to-site shipment.
type DepotAllocation struct {
	DepotID      string `json:"depot_id"`
	SiteID       SiteID `json:"site_id"`
	Quantity     int    `json:"quantity"`
	LeadTimeDays int    `json:"lead_time_days"`
}

// DepotPlan is the full allocation result.
type DepotPlan struct {
	Allocations     []DepotAllocation `json:"allocations"`
	TotalAllocated  int               `json:"total_allocated"`
	UnmetDemand     map[SiteID]int    `json:"unmet_demand,omitempty"`
	ExcessInventory map[string]int    `json:"excess_inventory,omitempty"`
	// Score is the fraction of net demand met, in [0,1].
	Score float64 `json:"optimization_score"`
}

// DepotSummary is the condensed form carried in the batch summary.
type DepotSummary struct {
	TotalAllocated    int     `json:"total_allocated"`
	OptimizationScore float64 `json:"optimization_score"`
	UnmetDemandSites  int     `json:"unmet_demand_sites"`
}

// Summarize condenses a plan for the batch summary.
func (p *DepotPlan) Summarize() *DepotSummary {
	return &DepotSummary{
		TotalAllocated:    p.TotalAllocated,
		OptimizationScore: p.Score,
		UnmetDemandSites:  len(p.UnmetDemand),
	}
}

// AllocateFromDepots plans depot-to-site shipments for the sites that
// need resupply. leadTimes maps depot id to per-site transit days; a
// missing entry defaults to 7 days.
func AllocateFromDepots(
	siteDemands map[SiteID]int,
	depotInventory map[string]int,
	siteInventory map[SiteID]int,
	leadTimes map[string]map[SiteID]int,
) *DepotPlan {
	plan := &DepotPlan{
		UnmetDemand:     make(map[SiteID]int),
		ExcessInventory: make(map[string]int),
	}

	// Net demand after counting stock already on the shelf.
	type demand struct {
		siteID SiteID
		net    int
	}
	demands := make([]demand, 0, len(siteDemands))
	totalNet := 0
	for siteID, want := range siteDemands {
		net := want - siteInventory[siteID]
		if net <= 0 {
			continue
		}
		demands = append(demands, demand{siteID: siteID, net: net})
		totalNet += net
	}
	sort.Slice(demands, func(i, j int) bool {
		if demands[i].net != demands[j].net {
			return demands[i].net > demands[j].net
		}
		return demands[i].siteID < demands[j].siteID
	})

	remaining := make(map[string]int, len(depotInventory))
	depotIDs := make([]string, 0, len(depotInventory))
	for depotID, inv := range depotInventory {
		remaining[depotID] = inv
		depotIDs = append(depotIDs, depotID)
	}
	sort.Strings(depotIDs)

	for _, d := range demands {
		depotID, lead := bestDepot(d.siteID, depotIDs, remaining, leadTimes)
		if depotID == "" {
			plan.UnmetDemand[d.siteID] = d.net
			continue
		}
		qty := d.net
		if remaining[depotID] < qty {
			qty = remaining[depotID]
		}
		plan.Allocations = append(plan.Allocations, DepotAllocation{
			DepotID:      depotID,
			SiteID:       d.siteID,
			Quantity:     qty,
			LeadTimeDays: lead,
		})
		plan.TotalAllocated += qty
		remaining[depotID] -= qty
		if qty < d.net {
			plan.UnmetDemand[d.siteID] = d.net - qty
		}
	}

	for depotID, left := range remaining {
		if left > 0 {
			plan.ExcessInventory[depotID] = left
		}
	}
	if totalNet > 0 {
		plan.Score = float64(plan.TotalAllocated) / float64(totalNet)
	}
	return plan
}

// bestDepot picks the stocked depot with the shortest lead time to the
// site; ties break by depot id for determinism.
func bestDepot(siteID SiteID, depotIDs []string, remaining map[string]int, leadTimes map[string]map[SiteID]int) (string, int) {
	const defaultLeadDays = 7

	best := ""
	bestLead := 0
	for _, depotID := range depotIDs {
		if remaining[depotID] <= 0 {
			continue
		}
		lead := defaultLeadDays
		if perSite, ok := leadTimes[depotID]; ok {
			if l, ok := perSite[siteID]; ok {
				lead = l
			}
		}
		if best == "" || lead < bestLead {
			best = depotID
			bestLead = lead
		}
	}
	return best, bestLead
}
