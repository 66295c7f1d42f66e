// Package web provides HTTP handlers and REST API endpoints for investigations.
package web

// CreateInvestigationRequest represents the request body for starting a new investigation.
type CreateInvestigationRequest struct {
	Query    string   `json:"query"               validate:"required,min=3"`
	UnitRefs []string `json:"unit_refs,omitempty"`
}
