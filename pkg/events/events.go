// Package events defines event types and structures for investigation lifecycle notifications.
package events

import (
	"time"
)

type EventType string

// Kafka topic.
const Topic = "veracity.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Investigation lifecycle events.
	InvestigationStartedEvent   EventType = "investigation.started"
	InvestigationCompletedEvent EventType = "investigation.completed"
	InvestigationFailedEvent    EventType = "investigation.failed"

	// Pipeline stage events.
	StageStartedEvent  EventType = "stage.started"
	StageFinishedEvent EventType = "stage.finished"
	StageFailedEvent   EventType = "stage.failed"
)

type BaseEvent struct {
	ID              string         `json:"id"`
	Type            EventType      `json:"type"`
	Timestamp       time.Time      `json:"timestamp"`
	InvestigationID string         `json:"investigation_id"`
	WorkerID        string         `json:"worker_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type InvestigationStarted struct {
	BaseEvent

	Query    string   `json:"query"`
	UnitRefs []string `json:"unit_refs,omitempty"`
}

func (e InvestigationStarted) GetType() EventType {
	return InvestigationStartedEvent
}

type InvestigationCompleted struct {
	BaseEvent

	AnalysisStatus string        `json:"analysis_status"`
	RiskOverride   string        `json:"risk_override,omitempty"`
	UnitsTotal     int           `json:"units_total"`
	UnitsFailed    int           `json:"units_failed"`
	Duration       time.Duration `json:"duration"`
}

func (e InvestigationCompleted) GetType() EventType {
	return InvestigationCompletedEvent
}

type InvestigationFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e InvestigationFailed) GetType() EventType {
	return InvestigationFailedEvent
}

type StageStarted struct {
	BaseEvent

	StageName string   `json:"stage_name"`
	DependsOn []string `json:"depends_on,omitempty"`
}

func (e StageStarted) GetType() EventType {
	return StageStartedEvent
}

type StageFinished struct {
	BaseEvent

	StageName    string `json:"stage_name"`
	FailureCount int    `json:"failure_count"`
	DurationMs   int64  `json:"duration_ms"`
}

func (e StageFinished) GetType() EventType {
	return StageFinishedEvent
}

type StageFailed struct {
	BaseEvent

	StageName string `json:"stage_name"`
	Class     string `json:"class"`
	Error     string `json:"error"`
}

func (e StageFailed) GetType() EventType {
	return StageFailedEvent
}
