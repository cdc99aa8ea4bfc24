/*
Package supply provides the core clinical supply forecasting domain.

PURPOSE:
  This package contains the pure domain types and algorithms for per-site
  resupply forecasting: raw record kinds, derived features, the rules
  engine, and the auxiliary analyses (enrollment, waste, excursions,
  depot allocation). Everything here is side-effect free and testable
  without the network or a database.

KEY CONCEPTS IN THIS FILE (types.go):
  - Site and the five operational record kinds (enrollment, dispense,
    inventory, shipment, waste)
  - SiteFeatures: derived numeric signals for one site
  - ResupplyDecision: the rules engine's output (always authoritative)
  - Justification: the LLM's advisory corroboration (never authoritative)
  - SiteReport / BatchReport: the units returned to callers

DESIGN PRINCIPLES:
  1. Immutability: records are loaded once per run and never mutated
  2. Precision: decimal.Decimal for rate/demand math, converted to
     float64 only at the report boundary
  3. Authority: the rules decision is never overwritten by LLM output
  4. Locality: features and decisions are purely per-site computations

SEE ALSO:
  - features.go: SiteFeatures derivation
  - rules.go: ResupplyDecision policy
  - errors.go: error taxonomy
*/
package supply

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// SiteID identifies a clinical trial site. Every record kind references one.
type SiteID string

// Action is the binary resupply decision for a site.
type Action string

const (
	ActionResupply   Action = "resupply"
	ActionNoResupply Action = "no_resupply"
)

// Trend classifies the direction of a site's enrollment over time.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
	TrendUnknown    Trend = "unknown"
)

// =============================================================================
// RAW RECORDS - One struct per input table
// =============================================================================

// Site is the source of truth for site identity. Unknown site_ids in any
// other table are a validation error, not silently dropped.
type Site struct {
	ID     SiteID
	Name   string
	Region string
}

// EnrollmentRecord is one enrollment event at a site. Multiple per site,
// unordered on input; chronological order is established during feature
// derivation.
type EnrollmentRecord struct {
	SiteID         SiteID
	EnrollmentDate time.Time
	SubjectCount   int
}

// DispenseRecord is one kit dispensing event at a site.
type DispenseRecord struct {
	SiteID        SiteID
	DispenseDate  time.Time
	KitsDispensed int
}

// InventoryRecord is a current inventory snapshot for a site. When a site
// has multiple snapshots, the soonest expiry governs urgency.
type InventoryRecord struct {
	SiteID           SiteID
	CurrentInventory int
	ExpiryDate       *time.Time // nil when the upload carries no expiry
}

// ShipmentRecord is one depot-to-site shipment. Temperature is optional;
// when present it feeds cold-chain excursion detection.
type ShipmentRecord struct {
	SiteID          SiteID
	ShipmentDate    time.Time
	QuantityShipped int
	Temperature     *float64
}

// WasteRecord is one kit destruction/loss event. Reason is optional.
type WasteRecord struct {
	SiteID         SiteID
	WasteDate      time.Time
	QuantityWasted int
	Reason         string
}

// =============================================================================
// DERIVED - Features and decisions
// =============================================================================

// SiteFeatures holds the derived numeric signals for one site, computed
// once per run against a caller-supplied reference date.
type SiteFeatures struct {
	SiteID   SiteID
	SiteName string
	Region   string

	// WeeklyDispenseKits is the trailing dispense rate, never negative.
	WeeklyDispenseKits decimal.Decimal

	// Projected30dDemand = WeeklyDispenseKits * 30/7 (2dp), raised to the
	// enrollment-adjusted demand when that projection is higher.
	Projected30dDemand decimal.Decimal

	// DaysToExpiry is relative to the reference date; negative means the
	// stock has already expired. nil means no expiry was supplied, and
	// every expiry-driven rule is skipped (NOT treated as infinite).
	DaysToExpiry *int

	CurrentInventory int

	// UrgencyScore is monotonically increasing as inventory shrinks or
	// expiry nears, bounded below by 0.
	UrgencyScore decimal.Decimal

	// Enrollment-derived signals.
	Predicted30dEnrollment int
	AvgWeeklyEnrollment    decimal.Decimal
	EnrollmentTrend        Trend
	ScreenFailRate         decimal.Decimal
}

// ResupplyDecision is the rules engine's output. Quantity is meaningful
// only when Action is ActionResupply, and is then at least the configured
// minimum order quantity.
type ResupplyDecision struct {
	SiteID   SiteID
	Action   Action
	Quantity int
	Reason   string
}

// =============================================================================
// JUSTIFICATION - Advisory LLM output
// =============================================================================

// StructuredResult is the schema-validated object the reasoning service
// returns. It corroborates (or disputes) the rules decision but never
// replaces it in the final report.
type StructuredResult struct {
	Action     Action   `json:"action"`
	Quantity   int      `json:"quantity"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Justification is the outcome of one justification request. On final
// failure Structured and DraftMessage are nil/empty and Failed carries the
// marker; the site report still ships the rules decision.
type Justification struct {
	Structured   *StructuredResult
	DraftMessage string
	LatencyMS    float64
	Failed       bool
	FailureCause string
}

// =============================================================================
// REPORTS - The externally observed JSON contract
// =============================================================================

// LLMReport is the llm object in the per-site JSON; the whole object is
// null when justification failed or was disabled.
type LLMReport struct {
	Structured   *StructuredResult `json:"structured_result"`
	DraftMessage string            `json:"draft_message"`
}

// SiteWaste summarizes waste attributed to one site.
type SiteWaste struct {
	TotalWaste    int            `json:"total_waste"`
	WasteByReason map[string]int `json:"waste_by_reason,omitempty"`
}

// SiteExcursions summarizes cold-chain excursions attributed to one site.
type SiteExcursions struct {
	TotalExcursions       int     `json:"total_excursions"`
	TotalQuantityAffected int     `json:"total_quantity_affected"`
	ExcursionRate         float64 `json:"excursion_rate"`
}

// SiteReport is the per-site unit returned to the caller: identity,
// features, decision, and (optionally) justification.
type SiteReport struct {
	SiteID             SiteID  `json:"site_id"`
	SiteName           string  `json:"site_name"`
	Region             string  `json:"region"`
	Projected30dDemand float64 `json:"projected_30d_demand"`
	CurrentInventory   int     `json:"current_inventory"`
	WeeklyDispenseKits float64 `json:"weekly_dispense_kits"`
	DaysToExpiry       *int    `json:"days_to_expiry"`
	UrgencyScore       float64 `json:"urgency_score"`

	Action   Action `json:"action"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`

	LLM       *LLMReport `json:"llm"`
	LatencyMS float64    `json:"latency_ms"`

	Predicted30dEnrollment int     `json:"predicted_30d_enrollment"`
	EnrollmentTrend        Trend   `json:"enrollment_trend"`
	ScreenFailRate         float64 `json:"screen_fail_rate"`

	WasteData      *SiteWaste      `json:"waste_data,omitempty"`
	TempExcursions *SiteExcursions `json:"temp_excursions,omitempty"`

	// Error carries a per-site data-quality marker. When set, the numeric
	// fields above are zero-valued and the batch continued without this
	// site affecting any other.
	Error string `json:"error,omitempty"`
}

// Summary aggregates one batch.
type Summary struct {
	TotalSites           int     `json:"total_sites"`
	SitesNeedingResupply int     `json:"sites_needing_resupply"`
	TotalQuantity        int     `json:"total_quantity"`
	AvgProjectedDemand   float64 `json:"avg_projected_demand"`
	AvgLatencyMS         float64 `json:"avg_latency_ms"`

	LLMSites   int `json:"llm_sites"`
	RulesSites int `json:"rules_sites"`
	ErrorSites int `json:"error_sites"`

	WasteAnalysis  *WasteAnalysis   `json:"waste_analysis,omitempty"`
	TempExcursions *ExcursionTotals `json:"temp_excursions,omitempty"`
	Depot          *DepotSummary    `json:"depot_optimization,omitempty"`
}

// ExcursionTotals aggregates excursions across the network.
type ExcursionTotals struct {
	SitesAffected   int `json:"sites_affected"`
	TotalExcursions int `json:"total_excursions"`
}

// BatchReport is the result of one pipeline invocation.
type BatchReport struct {
	SessionID string       `json:"session_id"`
	Results   []SiteReport `json:"results"`
	Summary   Summary      `json:"summary"`
}
