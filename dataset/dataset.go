/*
Package dataset holds one batch's input records, normalized into
in-memory tables keyed by site identifier.

PURPOSE:
  The record store between raw CSV uploads and the forecasting pipeline.
  Records are loaded once per run, validated globally (every referenced
  site_id must exist in the site registry), and discarded when the batch
  report is produced. Per-row data-quality problems are scoped to their
  site in Issues so one site's bad row never aborts the batch.

SEE ALSO:
  - csv.go: loading the six tabular files
  - supply/features.go: consumes per-site record slices
*/
package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/warp/supply-engine/supply"
)

// Table names, matching the upload contract.
const (
	TableSites      = "sites"
	TableEnrollment = "enrollment"
	TableDispense   = "dispense"
	TableInventory  = "inventory"
	TableShipments  = "shipment_logs"
	TableWaste      = "waste"
)

// Tables lists the six required tables in upload order.
var Tables = []string{
	TableSites, TableEnrollment, TableDispense,
	TableInventory, TableShipments, TableWaste,
}

// Dataset is the normalized record store for one batch.
type Dataset struct {
	Sites      []supply.Site
	Enrollment map[supply.SiteID][]supply.EnrollmentRecord
	Dispense   map[supply.SiteID][]supply.DispenseRecord
	Inventory  map[supply.SiteID][]supply.InventoryRecord
	Shipments  map[supply.SiteID][]supply.ShipmentRecord
	Waste      map[supply.SiteID][]supply.WasteRecord

	// Issues holds per-site data-quality errors found during load
	// (malformed dates, unparseable quantities). The orchestrator reports
	// them on the affected site's report; they never fail the batch.
	Issues map[supply.SiteID]*supply.DataQualityError
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{
		Enrollment: make(map[supply.SiteID][]supply.EnrollmentRecord),
		Dispense:   make(map[supply.SiteID][]supply.DispenseRecord),
		Inventory:  make(map[supply.SiteID][]supply.InventoryRecord),
		Shipments:  make(map[supply.SiteID][]supply.ShipmentRecord),
		Waste:      make(map[supply.SiteID][]supply.WasteRecord),
		Issues:     make(map[supply.SiteID]*supply.DataQualityError),
	}
}

// addIssue records the first data-quality problem seen for a site.
func (d *Dataset) addIssue(siteID supply.SiteID, issue *supply.DataQualityError) {
	if _, seen := d.Issues[siteID]; !seen {
		d.Issues[siteID] = issue
	}
}

// AllShipments flattens the shipment table for network-wide analyses.
func (d *Dataset) AllShipments() []supply.ShipmentRecord {
	var out []supply.ShipmentRecord
	for _, recs := range d.Shipments {
		out = append(out, recs...)
	}
	return out
}

// AllWaste flattens the waste table for network-wide analyses.
func (d *Dataset) AllWaste() []supply.WasteRecord {
	var out []supply.WasteRecord
	for _, recs := range d.Waste {
		out = append(out, recs...)
	}
	return out
}

// AllDispense flattens the dispense table.
func (d *Dataset) AllDispense() []supply.DispenseRecord {
	var out []supply.DispenseRecord
	for _, recs := range d.Dispense {
		out = append(out, recs...)
	}
	return out
}

// Validate enforces the global referential invariant: every site_id
// referenced by any record kind must exist in the site registry.
// Violations are a ValidationError (fatal), never a silent drop.
func (d *Dataset) Validate() error {
	if len(d.Sites) == 0 {
		return &supply.ValidationError{Table: TableSites, Detail: "no site records"}
	}

	known := make(map[supply.SiteID]bool, len(d.Sites))
	for _, s := range d.Sites {
		if s.ID == "" {
			return &supply.ValidationError{Table: TableSites, Detail: "empty site_id"}
		}
		known[s.ID] = true
	}

	unknown := make(map[supply.SiteID]bool)
	collect := func(id supply.SiteID) {
		if !known[id] {
			unknown[id] = true
		}
	}
	for id := range d.Enrollment {
		collect(id)
	}
	for id := range d.Dispense {
		collect(id)
	}
	for id := range d.Inventory {
		collect(id)
	}
	for id := range d.Shipments {
		collect(id)
	}
	for id := range d.Waste {
		collect(id)
	}
	// A malformed row lands in Issues without appending a record, so the
	// issue map is the only trace of its site_id. Check it too: an unknown
	// id must fail the batch even when its rows never parsed.
	for id := range d.Issues {
		collect(id)
	}

	if len(unknown) > 0 {
		ids := make([]string, 0, len(unknown))
		for id := range unknown {
			ids = append(ids, string(id))
		}
		sort.Strings(ids)
		return &supply.ValidationError{
			Detail: fmt.Sprintf("records reference unknown site ids: %s", strings.Join(ids, ", ")),
		}
	}
	return nil
}
