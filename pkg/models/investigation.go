// Package models defines the core domain models for biomedical claim investigations.
package models

import "time"

// InvestigationStatus represents the lifecycle state of an investigation run.
type InvestigationStatus string

const (
	InvestigationStatusPending   InvestigationStatus = "pending"   // Created, not yet executed
	InvestigationStatusRunning   InvestigationStatus = "running"   // Pipeline in progress
	InvestigationStatusCompleted InvestigationStatus = "completed" // Terminal, report available
	InvestigationStatusFailed    InvestigationStatus = "failed"    // Terminal, no usable report
)

// Investigation is the persisted record of one pipeline run over a biomedical claim.
type Investigation struct {
	ID             string              `json:"id"`
	Query          string              `json:"query"                     validate:"required,min=3"`
	UnitRefs       []string            `json:"unit_refs"`
	Status         InvestigationStatus `json:"status"                    validate:"required"`
	AnalysisStatus string              `json:"analysis_status,omitempty"`
	RiskOverride   *string             `json:"risk_override,omitempty"`
	Report         string              `json:"report,omitempty"`
	HarvestedCount int                 `json:"harvested_count"`
	EvidenceCount  int                 `json:"evidence_count"`
	FindingCount   int                 `json:"finding_count"`
	FailureCount   int                 `json:"failure_count"`
	CreatedAt      time.Time           `json:"created_at"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
}
