// Package investigation orchestrates one claim investigation end to end:
// persisting the record, running the stage pipeline, and publishing
// lifecycle events.
package investigation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veracitybio/veracity/pkg/eventbus"
	"github.com/veracitybio/veracity/pkg/events"
	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/otelhelper"
	"github.com/veracitybio/veracity/pkg/persistence"
	"github.com/veracitybio/veracity/pkg/pipeline"
	"github.com/veracitybio/veracity/pkg/stages"
)

var tracer = otel.Tracer("veracity/investigation")

// Manager runs investigations against a fixed set of collaborators.
type Manager struct {
	workerID      string
	persistence   persistence.Persistence
	bus           eventbus.EventPublisher
	collaborators stages.Collaborators
	logger        *slog.Logger
	timeout       time.Duration
}

// NewManager creates a manager. The bus may be nil when no event transport
// is configured; persistence is required.
func NewManager(
	workerID string,
	p persistence.Persistence,
	bus eventbus.EventPublisher,
	collaborators stages.Collaborators,
	logger *slog.Logger,
	timeout time.Duration,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		workerID:      workerID,
		persistence:   p,
		bus:           bus,
		collaborators: collaborators,
		logger:        logger.With("module", "investigation", "worker_id", workerID),
		timeout:       timeout,
	}
}

// Create persists a new pending investigation.
func (m *Manager) Create(ctx context.Context, query string, unitRefs []string) (*models.Investigation, error) {
	investigation := &models.Investigation{
		ID:        "inv-" + uuid.New().String(),
		Query:     query,
		UnitRefs:  unitRefs,
		Status:    models.InvestigationStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.persistence.SaveInvestigation(ctx, investigation); err != nil {
		return nil, fmt.Errorf("failed to save investigation: %w", err)
	}

	return investigation, nil
}

// Run executes the pipeline for one investigation and persists the outcome.
// The returned error covers infrastructure problems only; degraded analysis
// results are recorded on the investigation itself.
func (m *Manager) Run(ctx context.Context, investigation *models.Investigation) error {
	ctx, span := tracer.Start(ctx, "investigation.run", trace.WithAttributes(
		attribute.String(otelhelper.InvestigationIDKey, investigation.ID),
		attribute.String(otelhelper.QueryKey, investigation.Query),
		attribute.String(otelhelper.WorkerIDKey, m.workerID),
	))
	defer span.End()

	logger := m.logger.With("investigation_id", investigation.ID)

	investigation.Status = models.InvestigationStatusRunning
	if err := m.persistence.SaveInvestigation(ctx, investigation); err != nil {
		return fmt.Errorf("failed to mark investigation running: %w", err)
	}

	started := time.Now()

	m.publish(ctx, investigation.ID, events.InvestigationStarted{
		BaseEvent: m.baseEvent(events.InvestigationStartedEvent, investigation.ID),
		Query:     investigation.Query,
		UnitRefs:  investigation.UnitRefs,
	})

	logger.InfoContext(ctx, "Starting investigation", "query", investigation.Query)

	state, err := m.execute(ctx, investigation)
	if err != nil {
		logger.ErrorContext(ctx, "Investigation failed", "error", err)
		otelhelper.SetError(span, err)

		now := time.Now().UTC()
		investigation.Status = models.InvestigationStatusFailed
		investigation.FinishedAt = &now

		if saveErr := m.persistence.SaveInvestigation(ctx, investigation); saveErr != nil {
			logger.ErrorContext(ctx, "Failed to persist failed investigation", "error", saveErr)
		}

		m.publish(ctx, investigation.ID, events.InvestigationFailed{
			BaseEvent: m.baseEvent(events.InvestigationFailedEvent, investigation.ID),
			Error:     err.Error(),
			Duration:  time.Since(started),
		})

		return err
	}

	m.applyState(investigation, state)

	now := time.Now().UTC()
	investigation.Status = models.InvestigationStatusCompleted
	investigation.FinishedAt = &now

	if err := m.persistence.SaveInvestigation(ctx, investigation); err != nil {
		return fmt.Errorf("failed to persist completed investigation: %w", err)
	}

	completed := events.InvestigationCompleted{
		BaseEvent:      m.baseEvent(events.InvestigationCompletedEvent, investigation.ID),
		AnalysisStatus: investigation.AnalysisStatus,
		UnitsTotal:     investigation.HarvestedCount,
		UnitsFailed:    investigation.FailureCount,
		Duration:       time.Since(started),
	}
	if investigation.RiskOverride != nil {
		completed.RiskOverride = *investigation.RiskOverride
	}

	m.publish(ctx, investigation.ID, completed)

	logger.InfoContext(ctx, "Investigation completed",
		"analysis_status", investigation.AnalysisStatus,
		"duration", time.Since(started),
	)

	return nil
}

func (m *Manager) execute(ctx context.Context, investigation *models.Investigation) (map[string]any, error) {
	opts := []pipeline.Option{pipeline.WithLogger(m.logger)}
	if m.bus != nil {
		opts = append(opts, pipeline.WithEventBus(m.bus))
	}

	if m.timeout > 0 {
		opts = append(opts, pipeline.WithTimeout(m.timeout))
	}

	executor, err := pipeline.NewExecutor(stages.Schema(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build executor: %w", err)
	}

	if err := stages.Register(executor, m.collaborators, m.logger); err != nil {
		return nil, fmt.Errorf("failed to register stages: %w", err)
	}

	initial := map[string]any{stages.FieldQuery: investigation.Query}
	if len(investigation.UnitRefs) > 0 {
		initial[stages.FieldUnitRefs] = investigation.UnitRefs
	}

	return executor.Run(ctx, investigation.ID, initial)
}

// applyState copies the pipeline's merged output onto the persisted record.
func (m *Manager) applyState(investigation *models.Investigation, state map[string]any) {
	investigation.AnalysisStatus, _ = state[stages.FieldAnalysisStatus].(string)
	investigation.Report, _ = state[stages.FieldReport].(string)

	if override, ok := state[stages.FieldRiskOverride].(*string); ok {
		investigation.RiskOverride = override
	}

	if refs, ok := state[stages.FieldUnitRefs].([]string); ok {
		investigation.UnitRefs = refs
	}

	if harvested, ok := state[stages.FieldHarvested].([]models.DocumentRef); ok {
		investigation.HarvestedCount = len(harvested)
	}

	findings := 0

	if evidence, ok := state[stages.FieldTextEvidence].([]models.EvidenceItem); ok {
		investigation.EvidenceCount = len(evidence)
		for _, item := range evidence {
			findings += len(item.Findings)
		}
	}

	if imageFindings, ok := state[stages.FieldImageFindings].([]models.ImageFinding); ok {
		findings += len(imageFindings)
	}

	investigation.FindingCount = findings

	failedUnits := make(map[string]struct{})
	for _, record := range failureRecords(state) {
		if record.Unit != "" {
			failedUnits[record.Unit] = struct{}{}
		}
	}

	investigation.FailureCount = len(failedUnits)
}

func failureRecords(state map[string]any) []pipeline.FailureRecord {
	records, _ := state[stages.FieldFailures].([]pipeline.FailureRecord)

	return records
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.bus == nil {
		return
	}

	if err := m.bus.Publish(ctx, key, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish investigation event",
			"event_type", event.GetType(), "error", err)
	}
}

func (m *Manager) baseEvent(eventType events.EventType, investigationID string) events.BaseEvent {
	return events.BaseEvent{
		ID:              uuid.New().String(),
		Type:            eventType,
		Timestamp:       time.Now().UTC(),
		InvestigationID: investigationID,
		WorkerID:        m.workerID,
	}
}
