package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/persistence"
	"github.com/veracitybio/veracity/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"investigations", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed persistence tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("veracity_test"),
			postgres.WithUsername("veracity"),
			postgres.WithPassword("veracity"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func newTestInvestigation(query string) *models.Investigation {
	return &models.Investigation{
		ID:       uuid.New().String(),
		Query:    query,
		UnitRefs: []string{"PMID:100", "PMID:101"},
		Status:   models.InvestigationStatusPending,
	}
}

func TestPostgresPersistence_SaveAndGet(t *testing.T) {
	p, ctx := setupTestDB(t)

	investigation := newTestInvestigation("does compound X reverse fibrosis")
	require.NoError(t, p.SaveInvestigation(ctx, investigation))

	loaded, err := p.InvestigationByID(ctx, investigation.ID)
	require.NoError(t, err)

	assert.Equal(t, investigation.ID, loaded.ID)
	assert.Equal(t, investigation.Query, loaded.Query)
	assert.Equal(t, []string{"PMID:100", "PMID:101"}, loaded.UnitRefs)
	assert.Equal(t, models.InvestigationStatusPending, loaded.Status)
	assert.Nil(t, loaded.RiskOverride)
	assert.Nil(t, loaded.FinishedAt)
}

func TestPostgresPersistence_GetMissing(t *testing.T) {
	p, ctx := setupTestDB(t)

	_, err := p.InvestigationByID(ctx, uuid.New().String())

	require.Error(t, err)
	assert.True(t, persistence.IsInvestigationNotFound(err))
}

func TestPostgresPersistence_Upsert(t *testing.T) {
	p, ctx := setupTestDB(t)

	investigation := newTestInvestigation("q")
	require.NoError(t, p.SaveInvestigation(ctx, investigation))

	override := "UNKNOWN (CRITICAL DATA FAILURE)"
	finished := time.Now().UTC().Truncate(time.Millisecond)
	investigation.Status = models.InvestigationStatusCompleted
	investigation.AnalysisStatus = "CRITICAL_FAILURE"
	investigation.RiskOverride = &override
	investigation.Report = "no usable evidence"
	investigation.FailureCount = 5
	investigation.FinishedAt = &finished

	require.NoError(t, p.SaveInvestigation(ctx, investigation))

	loaded, err := p.InvestigationByID(ctx, investigation.ID)
	require.NoError(t, err)

	assert.Equal(t, models.InvestigationStatusCompleted, loaded.Status)
	assert.Equal(t, "CRITICAL_FAILURE", loaded.AnalysisStatus)
	require.NotNil(t, loaded.RiskOverride)
	assert.Equal(t, override, *loaded.RiskOverride)
	assert.Equal(t, "no usable evidence", loaded.Report)
	assert.Equal(t, 5, loaded.FailureCount)
	require.NotNil(t, loaded.FinishedAt)
	assert.WithinDuration(t, finished, *loaded.FinishedAt, time.Second)
}

func TestPostgresPersistence_ListNewestFirst(t *testing.T) {
	p, ctx := setupTestDB(t)

	older := newTestInvestigation("older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, p.SaveInvestigation(ctx, older))

	newer := newTestInvestigation("newer")
	newer.CreatedAt = time.Now().UTC()
	require.NoError(t, p.SaveInvestigation(ctx, newer))

	all, err := p.Investigations(ctx)
	require.NoError(t, err)

	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)
}

func TestPostgresPersistence_Delete(t *testing.T) {
	p, ctx := setupTestDB(t)

	investigation := newTestInvestigation("q")
	require.NoError(t, p.SaveInvestigation(ctx, investigation))
	require.NoError(t, p.DeleteInvestigation(ctx, investigation.ID))

	_, err := p.InvestigationByID(ctx, investigation.ID)
	assert.True(t, persistence.IsInvestigationNotFound(err))

	err = p.DeleteInvestigation(ctx, investigation.ID)
	assert.True(t, persistence.IsInvestigationNotFound(err))
}

func TestPostgresPersistence_HealthCheck(t *testing.T) {
	p, ctx := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestNewPersistence_MigrationsAreIdempotent(t *testing.T) {
	p, ctx := setupTestDB(t)

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	// A second initialization against the same database must not fail.
	second, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)
	require.NoError(t, second.Close(ctx))

	assert.NoError(t, p.HealthCheck(ctx))
}
