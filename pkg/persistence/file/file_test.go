package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/persistence"
)

func testInvestigation(id, query string) *models.Investigation {
	return &models.Investigation{
		ID:       id,
		Query:    query,
		Status:   models.InvestigationStatusPending,
		UnitRefs: []string{"PMID:1", "NCT:2"},
	}
}

func TestFilePersistence_SaveAndGet(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	investigation := testInvestigation("inv-1", "does compound X reverse fibrosis")
	require.NoError(t, p.SaveInvestigation(ctx, investigation))

	loaded, err := p.InvestigationByID(ctx, "inv-1")
	require.NoError(t, err)

	assert.Equal(t, "inv-1", loaded.ID)
	assert.Equal(t, "does compound X reverse fibrosis", loaded.Query)
	assert.Equal(t, models.InvestigationStatusPending, loaded.Status)
	assert.Equal(t, []string{"PMID:1", "NCT:2"}, loaded.UnitRefs)
	assert.False(t, loaded.CreatedAt.IsZero(), "Save should stamp CreatedAt")
}

func TestFilePersistence_GetMissing(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.InvestigationByID(context.Background(), "ghost")

	require.Error(t, err)
	assert.True(t, persistence.IsInvestigationNotFound(err))
}

func TestFilePersistence_SaveRequiresID(t *testing.T) {
	p := NewPersistence(t.TempDir())

	err := p.SaveInvestigation(context.Background(), &models.Investigation{Query: "q"})

	assert.Error(t, err)
}

func TestFilePersistence_ListNewestFirst(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	older := testInvestigation("inv-old", "older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, p.SaveInvestigation(ctx, older))

	newer := testInvestigation("inv-new", "newer")
	newer.CreatedAt = time.Now().UTC()
	require.NoError(t, p.SaveInvestigation(ctx, newer))

	all, err := p.Investigations(ctx)
	require.NoError(t, err)

	require.Len(t, all, 2)
	assert.Equal(t, "inv-new", all[0].ID)
	assert.Equal(t, "inv-old", all[1].ID)
}

func TestFilePersistence_ListEmptyRoot(t *testing.T) {
	p := NewPersistence(t.TempDir())

	all, err := p.Investigations(context.Background())

	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFilePersistence_Update(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	investigation := testInvestigation("inv-1", "q")
	require.NoError(t, p.SaveInvestigation(ctx, investigation))

	override := "UNCERTAIN (INCOMPLETE DATA - 20% failed)"
	investigation.Status = models.InvestigationStatusCompleted
	investigation.AnalysisStatus = "PARTIAL_SUCCESS"
	investigation.RiskOverride = &override
	require.NoError(t, p.SaveInvestigation(ctx, investigation))

	loaded, err := p.InvestigationByID(ctx, "inv-1")
	require.NoError(t, err)

	assert.Equal(t, models.InvestigationStatusCompleted, loaded.Status)
	assert.Equal(t, "PARTIAL_SUCCESS", loaded.AnalysisStatus)
	require.NotNil(t, loaded.RiskOverride)
	assert.Equal(t, override, *loaded.RiskOverride)
}

func TestFilePersistence_Delete(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, p.SaveInvestigation(ctx, testInvestigation("inv-1", "q")))
	require.NoError(t, p.DeleteInvestigation(ctx, "inv-1"))

	_, err := p.InvestigationByID(ctx, "inv-1")
	assert.True(t, persistence.IsInvestigationNotFound(err))

	err = p.DeleteInvestigation(ctx, "inv-1")
	assert.True(t, persistence.IsInvestigationNotFound(err))
}

func TestFilePersistence_HealthCheck(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, NewPersistence(dir).HealthCheck(context.Background()))
	assert.Error(t, NewPersistence(dir+"/missing").HealthCheck(context.Background()))
}

func TestFilePersistence_FileURLPrefix(t *testing.T) {
	dir := t.TempDir()
	p := NewPersistence("file://" + dir)

	require.NoError(t, p.SaveInvestigation(context.Background(), testInvestigation("inv-1", "q")))
	assert.NoError(t, p.HealthCheck(context.Background()))
}
