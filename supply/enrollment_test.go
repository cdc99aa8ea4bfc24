package supply

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enrollOn(d time.Time, count int) EnrollmentRecord {
	return EnrollmentRecord{SiteID: "SITE-001", EnrollmentDate: d, SubjectCount: count}
}

func TestPredictEnrollmentNoHistory(t *testing.T) {
	pred, err := PredictEnrollment("SITE-001", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, pred.Predicted30d)
	assert.Equal(t, TrendUnknown, pred.Trend)
}

func TestPredictEnrollmentRate(t *testing.T) {
	// GIVEN 21 subjects across a 21-day span
	records := []EnrollmentRecord{
		enrollOn(day(2026, 7, 1), 7),
		enrollOn(day(2026, 7, 11), 7),
		enrollOn(day(2026, 7, 21), 7),
	}

	pred, err := PredictEnrollment("SITE-001", records)

	// THEN weekly = 21*7/21 = 7 and 30-day prediction = 7*30/7 = 30
	require.NoError(t, err)
	assert.True(t, pred.AvgWeekly.Equal(decimal.NewFromInt(7)), "got %s", pred.AvgWeekly)
	assert.Equal(t, 30, pred.Predicted30d)
	assert.Equal(t, TrendStable, pred.Trend)
}

func TestPredictEnrollmentUnorderedInput(t *testing.T) {
	// Records arrive newest-first; the span must not go negative.
	records := []EnrollmentRecord{
		enrollOn(day(2026, 7, 21), 4),
		enrollOn(day(2026, 7, 1), 10),
	}

	pred, err := PredictEnrollment("SITE-001", records)

	require.NoError(t, err)
	assert.True(t, pred.AvgWeekly.IsPositive())
	assert.Equal(t, TrendDecreasing, pred.Trend)
}

func TestPredictEnrollmentTrends(t *testing.T) {
	cases := []struct {
		name   string
		counts []int
		want   Trend
	}{
		{"increasing", []int{1, 3, 5, 8}, TrendIncreasing},
		{"decreasing", []int{8, 5, 3, 1}, TrendDecreasing},
		{"stable", []int{5, 5, 5, 5}, TrendStable},
		{"single record", []int{5}, TrendUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var records []EnrollmentRecord
			for i, c := range tc.counts {
				records = append(records, enrollOn(day(2026, 7, 1+7*i), c))
			}
			pred, err := PredictEnrollment("SITE-001", records)
			require.NoError(t, err)
			assert.Equal(t, tc.want, pred.Trend)
		})
	}
}

func TestPredictEnrollmentBadRecords(t *testing.T) {
	t.Run("zero date", func(t *testing.T) {
		_, err := PredictEnrollment("SITE-001", []EnrollmentRecord{{SiteID: "SITE-001", SubjectCount: 3}})
		assert.ErrorIs(t, err, ErrDataQuality)
	})
	t.Run("negative count", func(t *testing.T) {
		_, err := PredictEnrollment("SITE-001", []EnrollmentRecord{enrollOn(day(2026, 7, 1), -3)})
		assert.ErrorIs(t, err, ErrDataQuality)
	})
}

func TestAdjustDemandForEnrollment(t *testing.T) {
	fail := decimal.NewFromFloat(0.30)

	// Enrollment-implied demand wins when higher: 100*0.7 = 70 > 40.
	got := AdjustDemandForEnrollment(decimal.NewFromInt(40), 100, fail)
	assert.True(t, got.Equal(decimal.NewFromInt(70)), "got %s", got)

	// The dispense-based projection wins otherwise.
	got = AdjustDemandForEnrollment(decimal.NewFromInt(80), 100, fail)
	assert.True(t, got.Equal(decimal.NewFromInt(80)), "got %s", got)

	// Zero prediction never drags the projection down.
	got = AdjustDemandForEnrollment(decimal.NewFromInt(80), 0, fail)
	assert.True(t, got.Equal(decimal.NewFromInt(80)), "got %s", got)
}
