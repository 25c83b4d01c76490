package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/config"
	"github.com/matna449/annual-report-analyzer/internal/model"
	"github.com/matna449/annual-report-analyzer/internal/resilience"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = eris.New("store: run not found")

// Store persists analysis runs. Results are stored as one JSON document.
type Store interface {
	CreateRun(ctx context.Context, source string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, result *model.AnalysisResult) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// Open creates the store named by cfg.Driver and applies its migration.
// Connecting to postgres is retried on transient failures.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		policy := resilience.NewRetryPolicy(3, 500*time.Millisecond)
		policy.OnRetry = resilience.RetryLogger("store", "connect")
		st, err = resilience.DoVal(ctx, policy, func(ctx context.Context) (Store, error) {
			pg, err := NewPostgres(ctx, cfg.DatabaseURL, nil)
			if err != nil {
				return nil, resilience.NewError(resilience.KindUnavailable, err)
			}
			return pg, nil
		})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Debug("store: opened", zap.String("driver", cfg.Driver))
	return st, nil
}
