package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/persistence"
)

// InvestigationRepository handles investigation-related file operations. One
// JSON file per investigation under <root>/investigations/.
type InvestigationRepository struct {
	root string
	mu   sync.RWMutex
}

// NewInvestigationRepository creates a new investigation repository.
func NewInvestigationRepository(root string) *InvestigationRepository {
	return &InvestigationRepository{root: root}
}

func (ir *InvestigationRepository) dir() string {
	return filepath.Join(ir.root, "investigations")
}

func (ir *InvestigationRepository) path(id string) string {
	return filepath.Join(ir.dir(), id+".json")
}

// GetAll returns all investigations, newest first.
func (ir *InvestigationRepository) GetAll(ctx context.Context) ([]*models.Investigation, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	if _, err := os.Stat(ir.dir()); os.IsNotExist(err) {
		return make([]*models.Investigation, 0), nil
	}

	root := os.DirFS(ir.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list investigation files: %w", err)
	}

	investigations := make([]*models.Investigation, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := file[:len(file)-5] // Remove .json extension

		investigation, err := ir.read(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load investigation %s: %w", id, err)
		}

		investigations = append(investigations, investigation)
	}

	sort.Slice(investigations, func(i, j int) bool {
		return investigations[i].CreatedAt.After(investigations[j].CreatedAt)
	})

	return investigations, nil
}

// GetByID returns one investigation, or ErrInvestigationNotFound.
func (ir *InvestigationRepository) GetByID(ctx context.Context, id string) (*models.Investigation, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	return ir.read(id)
}

func (ir *InvestigationRepository) read(id string) (*models.Investigation, error) {
	data, err := os.ReadFile(ir.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewInvestigationError("GetByID", id, persistence.ErrInvestigationNotFound)
		}

		return nil, fmt.Errorf("failed to read investigation file: %w", err)
	}

	var investigation models.Investigation

	err = json.Unmarshal(data, &investigation)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal investigation %s: %w", id, err)
	}

	return &investigation, nil
}

// Save writes the investigation to disk, creating the directory on first use.
func (ir *InvestigationRepository) Save(ctx context.Context, investigation *models.Investigation) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	if investigation.ID == "" {
		return persistence.NewInvestigationError("Save", "", fmt.Errorf("investigation ID is required"))
	}

	if investigation.CreatedAt.IsZero() {
		investigation.CreatedAt = time.Now().UTC()
	}

	err := os.MkdirAll(ir.dir(), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create investigations directory: %w", err)
	}

	data, err := json.MarshalIndent(investigation, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal investigation %s: %w", investigation.ID, err)
	}

	// Write-then-rename so readers never observe a partial file.
	tmp := ir.path(investigation.ID) + ".tmp"

	err = os.WriteFile(tmp, data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write investigation file: %w", err)
	}

	err = os.Rename(tmp, ir.path(investigation.ID))
	if err != nil {
		return fmt.Errorf("failed to finalize investigation file: %w", err)
	}

	return nil
}

// Delete removes the investigation file. Deleting an unknown ID is an error.
func (ir *InvestigationRepository) Delete(ctx context.Context, id string) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	err := os.Remove(ir.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewInvestigationError("Delete", id, persistence.ErrInvestigationNotFound)
		}

		return fmt.Errorf("failed to delete investigation %s: %w", id, err)
	}

	return nil
}
