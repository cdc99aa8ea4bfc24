package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/supply-engine/supply"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(sessionID string) *supply.BatchReport {
	return &supply.BatchReport{
		SessionID: sessionID,
		Results: []supply.SiteReport{
			{
				SiteID:             "SITE-001",
				SiteName:           "City Hospital",
				Region:             "EU",
				Projected30dDemand: 100,
				CurrentInventory:   50,
				Action:             supply.ActionResupply,
				Quantity:           70,
				Reason:             "projected demand exceeds safety stock",
				LLM: &supply.LLMReport{
					Structured: &supply.StructuredResult{
						Action:     supply.ActionResupply,
						Quantity:   70,
						Confidence: 0.9,
						Reasons:    []string{"inventory below demand"},
					},
					DraftMessage: "Expect 70 kits.",
				},
				LatencyMS: 12,
			},
			{
				SiteID:   "SITE-002",
				SiteName: "Rural Clinic",
				Region:   "US",
				Action:   supply.ActionNoResupply,
			},
		},
		Summary: supply.Summary{
			TotalSites:           2,
			SitesNeedingResupply: 1,
			TotalQuantity:        70,
			AvgProjectedDemand:   50,
			LLMSites:             1,
			RulesSites:           1,
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	// GIVEN a saved batch report
	s := newTestStore(t)
	ctx := context.Background()
	refDate := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleReport("run-1"), refDate))

	// WHEN the run is fetched back
	got, err := s.GetRun(ctx, "run-1")

	// THEN the report round-trips with site order preserved
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-1", got.SessionID)
	require.Len(t, got.Results, 2)
	assert.Equal(t, supply.SiteID("SITE-001"), got.Results[0].SiteID)
	assert.Equal(t, 70, got.Results[0].Quantity)
	require.NotNil(t, got.Results[0].LLM)
	assert.Equal(t, "Expect 70 kits.", got.Results[0].LLM.DraftMessage)
	assert.Nil(t, got.Results[1].LLM)
	assert.Equal(t, 1, got.Summary.SitesNeedingResupply)
}

func TestGetRunUnknown(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveRunDuplicateSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	refDate := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleReport("run-1"), refDate))

	err := s.SaveRun(ctx, sampleReport("run-1"), refDate)
	assert.Error(t, err, "session ids are unique")
}

func TestListRunsNewestFirst(t *testing.T) {
	// GIVEN two saved runs
	s := newTestStore(t)
	ctx := context.Background()
	refDate := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleReport("run-1"), refDate))
	require.NoError(t, s.SaveRun(ctx, sampleReport("run-2"), refDate.AddDate(0, 0, 1)))

	// WHEN runs are listed
	runs, err := s.ListRuns(ctx, 10)

	// THEN the newest run comes first with its summary columns
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].SessionID)
	assert.Equal(t, 2, runs[0].TotalSites)
	assert.Equal(t, 70, runs[0].TotalQuantity)
}

func TestSiteHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	refDate := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleReport("run-1"), refDate))

	history, err := s.SiteHistory(ctx, "SITE-001", 10)

	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, supply.ActionResupply, history[0].Action)

	history, err = s.SiteHistory(ctx, "SITE-404", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	refDate := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleReport("run-1"), refDate))

	require.NoError(t, s.Reset(ctx))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
