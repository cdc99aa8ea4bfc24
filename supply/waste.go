/*
waste.go - Waste pattern analysis

PURPOSE:
  Aggregates kit destruction/loss records into network and per-site
  totals, attributes waste to reasons when the upload carries them, and
  derives a waste rate against dispensed volume. Auxiliary to the core
  resupply decision; surfaces in the batch summary and per-site reports.
*/
package supply

// WasteReasonStats describes one destruction reason across the network.
type WasteReasonStats struct {
	Quantity    int     `json:"quantity"`
	Percentage  float64 `json:"percentage"`
	Occurrences int     `json:"occurrences"`
}

// WasteRate relates one site's waste to its dispensed volume.
type WasteRate struct {
	WasteRatePercent  float64 `json:"waste_rate_percent"`
	WasteQuantity     int     `json:"waste_quantity"`
	DispensedQuantity int     `json:"dispensed_quantity"`
}

// WasteAnalysis is the network-wide waste picture for one batch.
type WasteAnalysis struct {
	TotalWaste int                         `json:"total_waste"`
	ByReason   map[string]WasteReasonStats `json:"waste_by_reason,omitempty"`
	BySite     map[SiteID]*SiteWaste       `json:"waste_by_site,omitempty"`
	RateBySite map[SiteID]WasteRate        `json:"waste_rate_by_site,omitempty"`
}

// AnalyzeWaste aggregates waste records. Empty input yields an empty
// analysis, not an error.
func AnalyzeWaste(waste []WasteRecord, dispense []DispenseRecord) *WasteAnalysis {
	analysis := &WasteAnalysis{
		ByReason:   make(map[string]WasteReasonStats),
		BySite:     make(map[SiteID]*SiteWaste),
		RateBySite: make(map[SiteID]WasteRate),
	}
	if len(waste) == 0 {
		return analysis
	}

	for _, w := range waste {
		analysis.TotalWaste += w.QuantityWasted

		site := analysis.BySite[w.SiteID]
		if site == nil {
			site = &SiteWaste{WasteByReason: make(map[string]int)}
			analysis.BySite[w.SiteID] = site
		}
		site.TotalWaste += w.QuantityWasted
		if w.Reason != "" {
			site.WasteByReason[w.Reason] += w.QuantityWasted

			stats := analysis.ByReason[w.Reason]
			stats.Quantity += w.QuantityWasted
			stats.Occurrences++
			analysis.ByReason[w.Reason] = stats
		}
	}

	for reason, stats := range analysis.ByReason {
		if analysis.TotalWaste > 0 {
			stats.Percentage = float64(stats.Quantity) / float64(analysis.TotalWaste) * 100
		}
		analysis.ByReason[reason] = stats
	}

	dispensedBySite := make(map[SiteID]int)
	for _, d := range dispense {
		dispensedBySite[d.SiteID] += d.KitsDispensed
	}
	for siteID, site := range analysis.BySite {
		dispensed := dispensedBySite[siteID]
		rate := WasteRate{WasteQuantity: site.TotalWaste, DispensedQuantity: dispensed}
		if dispensed > 0 {
			rate.WasteRatePercent = float64(site.TotalWaste) / float64(dispensed) * 100
		}
		analysis.RateBySite[siteID] = rate
	}
	return analysis
}
