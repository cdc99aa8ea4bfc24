/*
csv.go - Loading the six tabular record files

PURPOSE:
  Parses the upload contract into a Dataset. Header matching is
  case-insensitive with surrounding whitespace ignored; a required column
  that is entirely absent is a fatal ValidationError, while a malformed
  value in one row becomes a per-site data-quality issue and the load
  continues.

FORMATS:
  Dates accept ISO (2006-01-02), ISO with time, and RFC3339. Optional
  columns: inventory.expiry_date may be blank (no expiry on record),
  shipment_logs may carry a temperature column, waste may carry a reason.
*/
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/warp/supply-engine/supply"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Filenames maps table name to the expected file name on disk.
var Filenames = map[string]string{
	TableSites:      "sites.csv",
	TableEnrollment: "enrollment.csv",
	TableDispense:   "dispense.csv",
	TableInventory:  "inventory.csv",
	TableShipments:  "shipment_logs.csv",
	TableWaste:      "waste.csv",
}

// LoadDir loads the six CSV files from a directory. A missing file is a
// fatal ValidationError.
func LoadDir(dir string) (*Dataset, error) {
	readers := make(map[string]io.Reader, len(Tables))
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	for _, table := range Tables {
		path := filepath.Join(dir, Filenames[table])
		f, err := os.Open(path)
		if err != nil {
			return nil, &supply.ValidationError{Table: table, Detail: fmt.Sprintf("required file %s not found", Filenames[table])}
		}
		closers = append(closers, f)
		readers[table] = f
	}
	return Load(readers)
}

// Load builds a Dataset from one reader per table. All six tables are
// required; their required columns are the upload contract.
func Load(readers map[string]io.Reader) (*Dataset, error) {
	ds := New()

	for _, name := range Tables {
		r, ok := readers[name]
		if !ok || r == nil {
			return nil, &supply.ValidationError{Table: name, Detail: "required table missing"}
		}
		t, err := readTable(name, r)
		if err != nil {
			return nil, err
		}
		if err := loadTable(ds, t); err != nil {
			return nil, err
		}
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// =============================================================================
// TABLE READING
// =============================================================================

var requiredColumns = map[string][]string{
	TableSites:      {"site_id", "site_name", "region"},
	TableEnrollment: {"site_id", "enrollment_date", "subject_count"},
	TableDispense:   {"site_id", "dispense_date", "kits_dispensed"},
	TableInventory:  {"site_id", "current_inventory", "expiry_date"},
	TableShipments:  {"site_id", "shipment_date", "quantity_shipped"},
	TableWaste:      {"site_id", "waste_date", "quantity_wasted"},
}

type table struct {
	name   string
	header map[string]int
	rows   [][]string
}

func readTable(name string, r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are handled per-cell
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &supply.ValidationError{Table: name, Detail: fmt.Sprintf("unreadable CSV: %v", err)}
	}
	if len(records) == 0 {
		return nil, &supply.ValidationError{Table: name, Detail: "missing header row"}
	}

	header := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		header[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns[name] {
		if _, ok := header[col]; !ok {
			return nil, &supply.ValidationError{Table: name, Column: col}
		}
	}
	return &table{name: name, header: header, rows: records[1:]}, nil
}

// cell returns the trimmed value of a named column for one row, or ""
// when the row is ragged or the column is absent.
func (t *table) cell(row []string, col string) string {
	i, ok := t.header[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// tempColumn finds an optional temperature column by substring match.
func (t *table) tempColumn() string {
	for col := range t.header {
		if strings.Contains(col, "temp") {
			return col
		}
	}
	return ""
}

// =============================================================================
// ROW PARSING
// =============================================================================

func loadTable(ds *Dataset, t *table) error {
	for n, row := range t.rows {
		if isBlank(row) {
			continue
		}
		siteID := supply.SiteID(t.cell(row, "site_id"))
		if siteID == "" {
			return &supply.ValidationError{Table: t.name, Detail: fmt.Sprintf("row %d: empty site_id", n+2)}
		}

		var err *supply.DataQualityError
		switch t.name {
		case TableSites:
			ds.Sites = append(ds.Sites, supply.Site{
				ID:     siteID,
				Name:   t.cell(row, "site_name"),
				Region: t.cell(row, "region"),
			})
		case TableEnrollment:
			err = loadEnrollmentRow(ds, t, row, siteID)
		case TableDispense:
			err = loadDispenseRow(ds, t, row, siteID)
		case TableInventory:
			err = loadInventoryRow(ds, t, row, siteID)
		case TableShipments:
			err = loadShipmentRow(ds, t, row, siteID)
		case TableWaste:
			err = loadWasteRow(ds, t, row, siteID)
		}
		if err != nil {
			ds.addIssue(siteID, err)
		}
	}
	return nil
}

func loadEnrollmentRow(ds *Dataset, t *table, row []string, siteID supply.SiteID) *supply.DataQualityError {
	date, err := parseDate(siteID, "enrollment_date", t.cell(row, "enrollment_date"))
	if err != nil {
		return err
	}
	count, err := parseInt(siteID, "subject_count", t.cell(row, "subject_count"))
	if err != nil {
		return err
	}
	ds.Enrollment[siteID] = append(ds.Enrollment[siteID], supply.EnrollmentRecord{
		SiteID: siteID, EnrollmentDate: date, SubjectCount: count,
	})
	return nil
}

func loadDispenseRow(ds *Dataset, t *table, row []string, siteID supply.SiteID) *supply.DataQualityError {
	date, err := parseDate(siteID, "dispense_date", t.cell(row, "dispense_date"))
	if err != nil {
		return err
	}
	kits, err := parseInt(siteID, "kits_dispensed", t.cell(row, "kits_dispensed"))
	if err != nil {
		return err
	}
	ds.Dispense[siteID] = append(ds.Dispense[siteID], supply.DispenseRecord{
		SiteID: siteID, DispenseDate: date, KitsDispensed: kits,
	})
	return nil
}

func loadInventoryRow(ds *Dataset, t *table, row []string, siteID supply.SiteID) *supply.DataQualityError {
	inv, err := parseInt(siteID, "current_inventory", t.cell(row, "current_inventory"))
	if err != nil {
		return err
	}
	rec := supply.InventoryRecord{SiteID: siteID, CurrentInventory: inv}

	// A blank expiry is allowed: the expiry feature is simply unknown.
	if raw := t.cell(row, "expiry_date"); raw != "" {
		date, err := parseDate(siteID, "expiry_date", raw)
		if err != nil {
			return err
		}
		rec.ExpiryDate = &date
	}
	ds.Inventory[siteID] = append(ds.Inventory[siteID], rec)
	return nil
}

func loadShipmentRow(ds *Dataset, t *table, row []string, siteID supply.SiteID) *supply.DataQualityError {
	date, err := parseDate(siteID, "shipment_date", t.cell(row, "shipment_date"))
	if err != nil {
		return err
	}
	qty, err := parseInt(siteID, "quantity_shipped", t.cell(row, "quantity_shipped"))
	if err != nil {
		return err
	}
	rec := supply.ShipmentRecord{SiteID: siteID, ShipmentDate: date, QuantityShipped: qty}

	if col := t.tempColumn(); col != "" {
		if raw := t.cell(row, col); raw != "" {
			temp, perr := strconv.ParseFloat(raw, 64)
			if perr != nil {
				return &supply.DataQualityError{SiteID: siteID, Field: col, Detail: fmt.Sprintf("unparseable number %q", raw)}
			}
			rec.Temperature = &temp
		}
	}
	ds.Shipments[siteID] = append(ds.Shipments[siteID], rec)
	return nil
}

func loadWasteRow(ds *Dataset, t *table, row []string, siteID supply.SiteID) *supply.DataQualityError {
	date, err := parseDate(siteID, "waste_date", t.cell(row, "waste_date"))
	if err != nil {
		return err
	}
	qty, err := parseInt(siteID, "quantity_wasted", t.cell(row, "quantity_wasted"))
	if err != nil {
		return err
	}
	ds.Waste[siteID] = append(ds.Waste[siteID], supply.WasteRecord{
		SiteID: siteID, WasteDate: date, QuantityWasted: qty, Reason: t.cell(row, "reason"),
	})
	return nil
}

func parseDate(siteID supply.SiteID, field, raw string) (time.Time, *supply.DataQualityError) {
	if raw == "" {
		return time.Time{}, &supply.DataQualityError{SiteID: siteID, Field: field, Detail: "missing date"}
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, &supply.DataQualityError{SiteID: siteID, Field: field, Detail: fmt.Sprintf("malformed date %q", raw)}
}

func parseInt(siteID supply.SiteID, field, raw string) (int, *supply.DataQualityError) {
	if raw == "" {
		return 0, &supply.DataQualityError{SiteID: siteID, Field: field, Detail: "missing value"}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		// Tolerate "12.0" style exports.
		if f, ferr := strconv.ParseFloat(raw, 64); ferr == nil && f == float64(int(f)) {
			return int(f), nil
		}
		return 0, &supply.DataQualityError{SiteID: siteID, Field: field, Detail: fmt.Sprintf("unparseable number %q", raw)}
	}
	return v, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
