package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/supply-engine/supply"
)

func TestValidateEmptyRegistry(t *testing.T) {
	ds := New()

	err := ds.Validate()

	var verr *supply.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, TableSites, verr.Table)
}

func TestValidateEmptySiteID(t *testing.T) {
	ds := New()
	ds.Sites = []supply.Site{{ID: ""}}

	assert.ErrorIs(t, ds.Validate(), supply.ErrValidation)
}

func TestValidateUnknownReferences(t *testing.T) {
	// GIVEN records referencing two sites missing from the registry
	ds := New()
	ds.Sites = []supply.Site{{ID: "SITE-001"}}
	ds.Dispense["SITE-999"] = []supply.DispenseRecord{{SiteID: "SITE-999"}}
	ds.Waste["SITE-042"] = []supply.WasteRecord{{SiteID: "SITE-042"}}

	err := ds.Validate()

	// THEN both ids are named, sorted, in one fatal error
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SITE-042, SITE-999")
}

func TestValidateUnknownSiteWithOnlyIssues(t *testing.T) {
	// GIVEN an unknown site whose only trace is a data-quality issue
	// (its rows were malformed, so no record was ever appended)
	ds := New()
	ds.Sites = []supply.Site{{ID: "SITE-001"}}
	ds.addIssue("GHOST", &supply.DataQualityError{SiteID: "GHOST", Field: "dispense_date"})

	err := ds.Validate()

	// THEN the unknown id still fails the batch
	require.Error(t, err)
	assert.ErrorIs(t, err, supply.ErrValidation)
	assert.Contains(t, err.Error(), "GHOST")
}

func TestValidateConsistentDataset(t *testing.T) {
	ds := New()
	ds.Sites = []supply.Site{{ID: "SITE-001"}, {ID: "SITE-002"}}
	ds.Inventory["SITE-002"] = []supply.InventoryRecord{{SiteID: "SITE-002", CurrentInventory: 5}}

	assert.NoError(t, ds.Validate())
}

func TestAddIssueKeepsFirst(t *testing.T) {
	ds := New()
	first := &supply.DataQualityError{SiteID: "SITE-001", Field: "dispense_date"}
	second := &supply.DataQualityError{SiteID: "SITE-001", Field: "kits_dispensed"}

	ds.addIssue("SITE-001", first)
	ds.addIssue("SITE-001", second)

	assert.Same(t, first, ds.Issues["SITE-001"])
}

func TestFlatteners(t *testing.T) {
	ds := New()
	d := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	ds.Shipments["SITE-001"] = []supply.ShipmentRecord{{SiteID: "SITE-001", ShipmentDate: d, QuantityShipped: 10}}
	ds.Shipments["SITE-002"] = []supply.ShipmentRecord{{SiteID: "SITE-002", ShipmentDate: d, QuantityShipped: 20}}
	ds.Waste["SITE-001"] = []supply.WasteRecord{{SiteID: "SITE-001", WasteDate: d, QuantityWasted: 2}}
	ds.Dispense["SITE-001"] = []supply.DispenseRecord{{SiteID: "SITE-001", DispenseDate: d, KitsDispensed: 8}}

	assert.Len(t, ds.AllShipments(), 2)
	assert.Len(t, ds.AllWaste(), 1)
	assert.Len(t, ds.AllDispense(), 1)
}
