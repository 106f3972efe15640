package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/credpool"
	"github.com/sells-group/billscan/internal/gateway"
	"github.com/sells-group/billscan/internal/job"
	"github.com/sells-group/billscan/internal/orchestrator"
	"github.com/sells-group/billscan/internal/store"
)

// env bundles the wired components shared by commands.
type env struct {
	Pool         *credpool.Pool
	Registry     *job.Registry
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store // nil when persistence is disabled
}

func initEnv(ctx context.Context) (*env, error) {
	pool := credpool.Load(cfg.Providers)
	if pool.Size() == 0 {
		zap.L().Warn("no provider credentials configured; every job will fail")
	}

	registry := job.NewRegistry()
	orch := orchestrator.New(registry, gateway.New(pool, cfg.Gateway), cfg.Batch)

	e := &env{
		Pool:         pool,
		Registry:     registry,
		Orchestrator: orch,
	}

	if cfg.Store.Driver != "" {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		e.Store = st
	}

	return e, nil
}

func (e *env) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("closing store", zap.Error(err))
		}
	}
}

// persistResult writes a completed job's result to the store, if configured.
func (e *env) persistResult(ctx context.Context, jobID, fileName string) {
	if e.Store == nil {
		return
	}
	rec, err := e.Registry.Get(jobID)
	if err != nil || rec.Status != job.StatusCompleted || rec.Result == nil {
		return
	}
	if _, err := e.Store.SaveResult(ctx, jobID, fileName, rec.Result); err != nil {
		zap.L().Warn("persisting result",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}
