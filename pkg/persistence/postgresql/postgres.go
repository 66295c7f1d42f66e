// Package postgresql provides PostgreSQL persistence implementation for investigations.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db                *sql.DB
	logger            *slog.Logger
	investigationRepo *InvestigationRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:                database,
		logger:            logger,
		investigationRepo: NewInvestigationRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Investigations returns all investigations from the database.
func (p *Persistence) Investigations(ctx context.Context) ([]*models.Investigation, error) {
	return p.investigationRepo.GetAll(ctx)
}

// InvestigationByID returns an investigation by its ID.
func (p *Persistence) InvestigationByID(ctx context.Context, id string) (*models.Investigation, error) {
	return p.investigationRepo.GetByID(ctx, id)
}

// SaveInvestigation saves an investigation to the database.
func (p *Persistence) SaveInvestigation(ctx context.Context, investigation *models.Investigation) error {
	return p.investigationRepo.Save(ctx, investigation)
}

// DeleteInvestigation removes an investigation by its ID.
func (p *Persistence) DeleteInvestigation(ctx context.Context, id string) error {
	return p.investigationRepo.Delete(ctx, id)
}
