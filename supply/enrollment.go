/*
enrollment.go - Enrollment forecasting and demand adjustment

PURPOSE:
  Projects near-term enrollment per site from historical enrollment
  records and raises the dispense-based demand projection when enrollment
  implies more kits than history does. One successful (post-screening)
  enrollment is assumed to consume one kit.

TREND:
  A least-squares slope over the chronological subject counts classifies
  the trend. Fewer than two records is "unknown".
*/
package supply

import (
	"sort"

	"github.com/shopspring/decimal"
)

// defaultScreenFailRate is the industry-average screening failure rate
// applied when the upload carries no site-specific rate.
var defaultScreenFailRate = decimal.NewFromFloat(0.30)

// trendSlopeEpsilon separates "stable" from a real trend.
const trendSlopeEpsilon = 0.1

// EnrollmentPrediction is the per-site enrollment forecast.
type EnrollmentPrediction struct {
	Predicted30d int
	AvgWeekly    decimal.Decimal
	Trend        Trend
}

// PredictEnrollment forecasts 30-day enrollment for one site from its
// enrollment history. No records yields a zero prediction with an unknown
// trend, not an error.
func PredictEnrollment(siteID SiteID, records []EnrollmentRecord) (EnrollmentPrediction, error) {
	pred := EnrollmentPrediction{Trend: TrendUnknown}
	if len(records) == 0 {
		return pred, nil
	}

	ordered := make([]EnrollmentRecord, len(records))
	copy(ordered, records)
	total := 0
	for _, r := range ordered {
		if r.EnrollmentDate.IsZero() {
			return pred, &DataQualityError{SiteID: siteID, Field: "enrollment_date", Detail: "missing or malformed date"}
		}
		if r.SubjectCount < 0 {
			return pred, &DataQualityError{SiteID: siteID, Field: "subject_count", Detail: "negative count"}
		}
		total += r.SubjectCount
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].EnrollmentDate.Before(ordered[j].EnrollmentDate)
	})

	first := ordered[0].EnrollmentDate
	last := ordered[len(ordered)-1].EnrollmentDate
	spanDays := int(last.Sub(first).Hours()/24) + 1
	if spanDays < 1 {
		spanDays = 1
	}

	pred.AvgWeekly = decimal.NewFromInt(int64(total)).
		Mul(seven).
		Div(decimal.NewFromInt(int64(spanDays)))
	pred.Predicted30d = int(pred.AvgWeekly.Mul(thirty).Div(seven).IntPart())
	pred.Trend = enrollmentTrend(ordered)
	return pred, nil
}

// AdjustDemandForEnrollment returns the higher of the dispense-based
// projection and the enrollment-implied demand after screening losses.
func AdjustDemandForEnrollment(base decimal.Decimal, predicted30d int, screenFailRate decimal.Decimal) decimal.Decimal {
	successful := decimal.NewFromInt(int64(predicted30d)).
		Mul(one.Sub(screenFailRate)).
		IntPart()
	if implied := decimal.NewFromInt(successful); implied.GreaterThan(base) {
		return implied
	}
	return base
}

// enrollmentTrend fits a least-squares slope over the ordered subject
// counts. Index, not calendar time, is the x axis: uploads are typically
// evenly spaced and the classification only needs a direction.
func enrollmentTrend(ordered []EnrollmentRecord) Trend {
	n := len(ordered)
	if n < 2 {
		return TrendUnknown
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, r := range ordered {
		x := float64(i)
		y := float64(r.SubjectCount)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return TrendStable
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	switch {
	case slope > trendSlopeEpsilon:
		return TrendIncreasing
	case slope < -trendSlopeEpsilon:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
