// Package file provides file-based persistence implementation for investigations.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root              string
	investigationRepo *InvestigationRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:              cleanRoot,
		investigationRepo: NewInvestigationRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Investigations(ctx context.Context) ([]*models.Investigation, error) {
	return fp.investigationRepo.GetAll(ctx)
}

func (fp *Persistence) InvestigationByID(ctx context.Context, id string) (*models.Investigation, error) {
	return fp.investigationRepo.GetByID(ctx, id)
}

func (fp *Persistence) SaveInvestigation(ctx context.Context, investigation *models.Investigation) error {
	return fp.investigationRepo.Save(ctx, investigation)
}

func (fp *Persistence) DeleteInvestigation(ctx context.Context, id string) error {
	return fp.investigationRepo.Delete(ctx, id)
}
