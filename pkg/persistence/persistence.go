// Package persistence provides the data storage abstraction layer for investigations.
package persistence

import (
	"context"

	"github.com/veracitybio/veracity/pkg/models"
)

type Persistence interface {
	Investigations(ctx context.Context) ([]*models.Investigation, error)
	SaveInvestigation(ctx context.Context, investigation *models.Investigation) error
	InvestigationByID(ctx context.Context, id string) (*models.Investigation, error)
	DeleteInvestigation(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
