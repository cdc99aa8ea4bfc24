/*
errors.go - Centralized error taxonomy for the forecasting pipeline

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy determines blast radius:

  1. DataQualityError   - one site's record is malformed; that site is
                          reported with an error marker, batch continues
  2. ValidationError    - a required file/column is structurally absent;
                          fatal before any site processing starts
  3. JustificationError - the reasoning service failed after retries;
                          degrades one site's report, never fatal
  4. ConfigurationError - invalid tunable; fatal at startup

USAGE:
  Callers branch with errors.Is / errors.As:

    var dq *supply.DataQualityError
    if errors.As(err, &dq) {
        report.Error = dq.Error()
    }

SEE ALSO:
  - features.go: raises DataQualityError
  - config.go: raises ConfigurationError
*/
package supply

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDataQuality is the sentinel under every DataQualityError.
	ErrDataQuality = errors.New("data quality error")

	// ErrValidation is the sentinel under every ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrJustification is the sentinel under every JustificationError.
	ErrJustification = errors.New("justification error")

	// ErrConfiguration is the sentinel under every ConfigurationError.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnknownSite is returned when a record references a site_id that
	// is not in the site registry.
	ErrUnknownSite = errors.New("unknown site id")

	// ErrNoSites is returned when a batch has no site records at all.
	ErrNoSites = errors.New("no sites to process")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DataQualityError scopes a malformed/missing field to a single site.
type DataQualityError struct {
	SiteID SiteID
	Field  string
	Detail string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality error for site %s: %s: %s", e.SiteID, e.Field, e.Detail)
}

func (e *DataQualityError) Unwrap() error { return ErrDataQuality }

// ValidationError reports a structurally invalid input set: a required
// table or column entirely absent, or records referencing unknown sites.
type ValidationError struct {
	Table  string
	Column string
	Detail string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("validation error: table %q missing required column %q", e.Table, e.Column)
	case e.Table != "":
		return fmt.Sprintf("validation error: table %q: %s", e.Table, e.Detail)
	default:
		return fmt.Sprintf("validation error: %s", e.Detail)
	}
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// JustificationError is the terminal failure of one site's justification
// request after the retry budget is exhausted. Attempts records how many
// calls were made; Transient reports whether the last failure looked
// retryable (rate limit, timeout) or permanent (auth, schema).
type JustificationError struct {
	SiteID    SiteID
	Attempts  int
	Transient bool
	Last      error
}

func (e *JustificationError) Error() string {
	return fmt.Sprintf("justification failed for site %s after %d attempt(s): %v", e.SiteID, e.Attempts, e.Last)
}

func (e *JustificationError) Unwrap() error { return ErrJustification }

// ConfigurationError reports an invalid tunable at startup.
type ConfigurationError struct {
	Param  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Param, e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
