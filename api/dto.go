/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication that are not already
  part of the report contract. The per-site report and batch summary
  serialize directly from the supply package; only the envelope types
  live here.

NAMING CONVENTION:
  - *Response: Response wrappers returned to clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - supply/types.go: SiteReport / BatchReport JSON contract
*/
package api

import "github.com/warp/supply-engine/store/sqlite"

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse reports service liveness and the configured key-pool
// size (0 means justification runs disabled).
type HealthResponse struct {
	Status      string `json:"status"`
	Credentials int    `json:"credentials"`
}

// RunListResponse wraps the run history listing.
type RunListResponse struct {
	Runs []sqlite.RunSummary `json:"runs"`
}
