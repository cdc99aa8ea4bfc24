/*
excursions.go - Cold-chain temperature excursion detection

PURPOSE:
  Flags shipments recorded outside the 2-8 C cold-chain range and waste
  records whose reason names a temperature event. Auxiliary analysis:
  excursions never change the resupply decision, they annotate the site
  report for regulatory follow-up.
*/
package supply

import "strings"

// Acceptable cold-chain range in Celsius.
const (
	coldChainMinC = 2.0
	coldChainMaxC = 8.0
)

// DetectExcursions scans shipment logs and waste records for cold-chain
// excursions, aggregated per site. The excursion rate is excursions over
// total shipments for the site (0 when the site has no shipments).
func DetectExcursions(shipments []ShipmentRecord, waste []WasteRecord) map[SiteID]*SiteExcursions {
	out := make(map[SiteID]*SiteExcursions)

	record := func(siteID SiteID, quantity int) {
		e := out[siteID]
		if e == nil {
			e = &SiteExcursions{}
			out[siteID] = e
		}
		e.TotalExcursions++
		e.TotalQuantityAffected += quantity
	}

	for _, w := range waste {
		if reason := strings.ToLower(w.Reason); strings.Contains(reason, "temp") {
			record(w.SiteID, w.QuantityWasted)
		}
	}

	shipmentsBySite := make(map[SiteID]int)
	for _, s := range shipments {
		shipmentsBySite[s.SiteID]++
		if s.Temperature == nil {
			continue
		}
		if *s.Temperature < coldChainMinC || *s.Temperature > coldChainMaxC {
			record(s.SiteID, s.QuantityShipped)
		}
	}

	for siteID, e := range out {
		if n := shipmentsBySite[siteID]; n > 0 {
			e.ExcursionRate = float64(e.TotalExcursions) / float64(n)
		}
	}
	return out
}
