package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matna449/annual-report-analyzer/internal/config"
	"github.com/matna449/annual-report-analyzer/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleResult() *model.AnalysisResult {
	v := 10.5
	return &model.AnalysisResult{
		Status: model.StatusPartial,
		Metrics: []model.FinancialMetric{
			{Name: "Revenue", RawValue: "$10.5 billion", Value: &v, Unit: model.UnitBillion, Currency: "USD"},
		},
		Risk: model.RiskAssessment{
			Score:  0.45,
			Method: model.MethodFallback,
			Factors: []model.RiskFactor{
				{Text: "The company faces significant regulatory risk.", Category: model.RiskRegulation, Severity: 0.9},
			},
		},
		ComponentErrors: map[string]string{"entities": "gateway unavailable"},
		ChunkCount:      3,
		ModelUsed:       "finbert",
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "acme-10k.pdf")
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunQueued, run.Status)
		assert.Equal(t, "acme-10k.pdf", run.Source)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunQueued, got.Status)
		assert.Equal(t, "acme-10k.pdf", got.Source)
		assert.Nil(t, got.Result)
		assert.Empty(t, got.Error)
	})

	t.Run("UpdateRunStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "report.txt")
		require.NoError(t, err)

		require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunRunning))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunRunning, got.Status)
	})

	t.Run("CompleteRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "report.txt")
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(ctx, run.ID, sampleResult()))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunCompleted, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, model.StatusPartial, got.Result.Status)
		require.Len(t, got.Result.Metrics, 1)
		assert.InDelta(t, 10.5, *got.Result.Metrics[0].Value, 1e-9)
		assert.Equal(t, model.RiskRegulation, got.Result.Risk.Factors[0].Category)
		assert.Equal(t, "gateway unavailable", got.Result.ComponentErrors["entities"])
		assert.Equal(t, 3, got.Result.ChunkCount)
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "report.txt")
		require.NoError(t, err)
		require.NoError(t, s.FailRun(ctx, run.ID, "extract text: empty document"))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunFailed, got.Status)
		assert.Equal(t, "extract text: empty document", got.Error)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetRun(ctx, "missing")
		assert.True(t, eris.Is(err, ErrNotFound))

		assert.True(t, eris.Is(s.UpdateRunStatus(ctx, "missing", model.RunRunning), ErrNotFound))
		assert.True(t, eris.Is(s.CompleteRun(ctx, "missing", sampleResult()), ErrNotFound))
		assert.True(t, eris.Is(s.FailRun(ctx, "missing", "x"), ErrNotFound))
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ids := make([]string, 0, 3)
		for _, src := range []string{"a.pdf", "b.pdf", "c.pdf"} {
			run, err := s.CreateRun(ctx, src)
			require.NoError(t, err)
			ids = append(ids, run.ID)
		}
		require.NoError(t, s.UpdateRunStatus(ctx, ids[1], model.RunRunning))

		all, err := s.ListRuns(ctx, model.RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		running, err := s.ListRuns(ctx, model.RunFilter{Status: model.RunRunning})
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Equal(t, ids[1], running[0].ID)

		limited, err := s.ListRuns(ctx, model.RunFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		rest, err := s.ListRuns(ctx, model.RunFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})

	t.Run("ListRunsEmpty", func(t *testing.T) {
		s := newStore(t)

		runs, err := s.ListRuns(context.Background(), model.RunFilter{Status: model.RunFailed})
		require.NoError(t, err)
		assert.NotNil(t, runs)
		assert.Empty(t, runs)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "open.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	run, err := s.CreateRun(context.Background(), "open.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
