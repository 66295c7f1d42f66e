package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/persistence"
)

// InvestigationRepository handles investigation-related database operations.
type InvestigationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInvestigationRepository creates a new investigation repository.
func NewInvestigationRepository(db *sql.DB, logger *slog.Logger) *InvestigationRepository {
	return &InvestigationRepository{db: db, logger: logger}
}

const investigationColumns = `
	id
  , query
  , unit_refs
  , status
  , analysis_status
  , risk_override
  , report
  , harvested_count
  , evidence_count
  , finding_count
  , failure_count
  , created_at
  , finished_at
`

// GetAll returns all investigations, newest first.
func (r *InvestigationRepository) GetAll(ctx context.Context) ([]*models.Investigation, error) {
	query := `
		SELECT ` + investigationColumns + `
		FROM investigations
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query investigations: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	investigations := make([]*models.Investigation, 0)

	for rows.Next() {
		investigation, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investigation: %w", err)
		}

		investigations = append(investigations, investigation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating investigations: %w", err)
	}

	return investigations, nil
}

// GetByID returns an investigation by ID, or ErrInvestigationNotFound.
func (r *InvestigationRepository) GetByID(ctx context.Context, id string) (*models.Investigation, error) {
	query := `
		SELECT ` + investigationColumns + `
		FROM investigations
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	investigation, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInvestigationError("GetByID", id, persistence.ErrInvestigationNotFound)
		}

		return nil, fmt.Errorf("failed to scan investigation: %w", err)
	}

	return investigation, nil
}

// Save upserts an investigation.
func (r *InvestigationRepository) Save(ctx context.Context, investigation *models.Investigation) error {
	if investigation.ID == "" {
		return persistence.NewInvestigationError("Save", "", fmt.Errorf("investigation ID is required"))
	}

	if investigation.CreatedAt.IsZero() {
		investigation.CreatedAt = time.Now().UTC()
	}

	unitRefs, err := json.Marshal(investigation.UnitRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal unit refs: %w", err)
	}

	query := `
		INSERT INTO investigations (
			id, query, unit_refs, status, analysis_status, risk_override, report,
			harvested_count, evidence_count, finding_count, failure_count,
			created_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			query = EXCLUDED.query,
			unit_refs = EXCLUDED.unit_refs,
			status = EXCLUDED.status,
			analysis_status = EXCLUDED.analysis_status,
			risk_override = EXCLUDED.risk_override,
			report = EXCLUDED.report,
			harvested_count = EXCLUDED.harvested_count,
			evidence_count = EXCLUDED.evidence_count,
			finding_count = EXCLUDED.finding_count,
			failure_count = EXCLUDED.failure_count,
			finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		investigation.ID,
		investigation.Query,
		unitRefs,
		investigation.Status,
		nullString(investigation.AnalysisStatus),
		investigation.RiskOverride,
		nullString(investigation.Report),
		investigation.HarvestedCount,
		investigation.EvidenceCount,
		investigation.FindingCount,
		investigation.FailureCount,
		investigation.CreatedAt,
		investigation.FinishedAt,
	)
	if err != nil {
		return persistence.NewInvestigationError("Save", investigation.ID, err)
	}

	return nil
}

// Delete removes an investigation. Deleting an unknown ID is an error.
func (r *InvestigationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM investigations WHERE id = $1", id)
	if err != nil {
		return persistence.NewInvestigationError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewInvestigationError("Delete", id, persistence.ErrInvestigationNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *InvestigationRepository) scan(row rowScanner) (*models.Investigation, error) {
	var (
		investigation  models.Investigation
		unitRefs       []byte
		analysisStatus sql.NullString
		report         sql.NullString
	)

	err := row.Scan(
		&investigation.ID,
		&investigation.Query,
		&unitRefs,
		&investigation.Status,
		&analysisStatus,
		&investigation.RiskOverride,
		&report,
		&investigation.HarvestedCount,
		&investigation.EvidenceCount,
		&investigation.FindingCount,
		&investigation.FailureCount,
		&investigation.CreatedAt,
		&investigation.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(unitRefs) > 0 {
		if err := json.Unmarshal(unitRefs, &investigation.UnitRefs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal unit refs: %w", err)
		}
	}

	investigation.AnalysisStatus = analysisStatus.String
	investigation.Report = report.String

	return &investigation, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
