/*
summary.go - Batch summary aggregation

Averages are computed over the sites that actually produced the figure:
projected demand over decided sites, latency over sites whose
justification call completed, so degraded or skipped sites never drag
the averages toward zero.
*/
package pipeline

import "github.com/warp/supply-engine/supply"

func buildSummary(states []*siteState, waste *supply.WasteAnalysis, excursions map[supply.SiteID]*supply.SiteExcursions) supply.Summary {
	s := supply.Summary{TotalSites: len(states)}

	var demandSum, latencySum float64
	var decided, justified int
	for _, st := range states {
		if st.report.Error != "" {
			s.ErrorSites++
			continue
		}
		decided++
		demandSum += st.report.Projected30dDemand
		if st.report.Action == supply.ActionResupply {
			s.SitesNeedingResupply++
			s.TotalQuantity += st.report.Quantity
		}
		if st.report.LLM != nil {
			s.LLMSites++
			latencySum += st.report.LatencyMS
			justified++
		} else {
			s.RulesSites++
		}
	}
	if decided > 0 {
		s.AvgProjectedDemand = demandSum / float64(decided)
	}
	if justified > 0 {
		s.AvgLatencyMS = latencySum / float64(justified)
	}

	if waste != nil && waste.TotalWaste > 0 {
		s.WasteAnalysis = waste
	}
	if len(excursions) > 0 {
		totals := &supply.ExcursionTotals{SitesAffected: len(excursions)}
		for _, e := range excursions {
			totals.TotalExcursions += e.TotalExcursions
		}
		s.TempExcursions = totals
	}
	return s
}
