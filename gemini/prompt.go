/*
prompt.go - Justification prompt assembly

Builds the single-site prompt: the site's derived metrics, the rules
engine's recommendation, optional network-wide context, and the exact
JSON document the model must return. Temperature is pinned to 0 and the
response MIME type to application/json, so the reply should be parseable
as-is.
*/
package gemini

import (
	"fmt"
	"strings"

	"github.com/warp/supply-engine/supply"
)

// Request carries everything the prompt needs for one site.
type Request struct {
	Features supply.SiteFeatures
	Decision supply.ResupplyDecision

	// Context is optional network-wide framing; nil omits the section.
	Context *NetworkContext
}

// NetworkContext summarizes the batch so the model can place one site
// relative to its peers.
type NetworkContext struct {
	TotalSites   int
	AvgInventory float64
	AvgDemand    float64
	AvgUrgency   float64
}

func buildPrompt(req Request) string {
	f := req.Features
	d := req.Decision

	var b strings.Builder
	b.WriteString("You are a clinical trial supply chain analyst. Review the resupply recommendation below and produce a justification.\n\n")

	fmt.Fprintf(&b, "SITE: %s (%s, region %s)\n", f.SiteID, f.SiteName, f.Region)
	b.WriteString("METRICS:\n")
	fmt.Fprintf(&b, "- weekly dispense rate: %s kits/week\n", f.WeeklyDispenseKits.StringFixed(2))
	fmt.Fprintf(&b, "- projected 30-day demand: %s kits\n", f.Projected30dDemand.StringFixed(2))
	fmt.Fprintf(&b, "- current inventory: %d kits\n", f.CurrentInventory)
	if f.DaysToExpiry != nil {
		fmt.Fprintf(&b, "- days to soonest expiry: %d\n", *f.DaysToExpiry)
	} else {
		b.WriteString("- days to soonest expiry: unknown\n")
	}
	fmt.Fprintf(&b, "- urgency score: %s\n", f.UrgencyScore.StringFixed(2))
	fmt.Fprintf(&b, "- predicted 30-day enrollment: %d subjects (trend %s)\n",
		f.Predicted30dEnrollment, f.EnrollmentTrend)

	b.WriteString("\nRULES ENGINE RECOMMENDATION:\n")
	fmt.Fprintf(&b, "- action: %s\n", d.Action)
	if d.Action == supply.ActionResupply {
		fmt.Fprintf(&b, "- quantity: %d kits\n", d.Quantity)
	}
	fmt.Fprintf(&b, "- rationale: %s\n", d.Reason)

	if c := req.Context; c != nil {
		b.WriteString("\nNETWORK CONTEXT:\n")
		fmt.Fprintf(&b, "- sites in this batch: %d\n", c.TotalSites)
		fmt.Fprintf(&b, "- average inventory: %.1f kits\n", c.AvgInventory)
		fmt.Fprintf(&b, "- average projected demand: %.1f kits\n", c.AvgDemand)
		fmt.Fprintf(&b, "- average urgency: %.2f\n", c.AvgUrgency)
	}

	b.WriteString("\nRespond with a single JSON object and nothing else:\n")
	b.WriteString(`{
  "structured_result": {
    "action": "resupply" or "no_resupply",
    "quantity": <integer, 0 when no resupply>,
    "confidence": <number between 0 and 1>,
    "reasons": [<up to 3 short strings>]
  },
  "draft_message": "<2-3 sentence message to the site coordinator>"
}`)
	return b.String()
}
