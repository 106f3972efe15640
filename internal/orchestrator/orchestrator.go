// Package orchestrator drives extraction jobs through the gateway and the
// reconciliation engine, recording every outcome on the job registry.
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/job"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/reconcile"
)

// Analyzer is the extraction gateway surface the orchestrator depends on.
type Analyzer interface {
	Analyze(ctx context.Context, content model.Content, documentName string) (string, *model.TokenUsage, error)
}

// BatchJob is one unit of work in a batch run.
type BatchJob struct {
	ID      string
	Content model.Content
	Name    string
}

// Orchestrator processes jobs strictly sequentially within a batch, pacing
// calls with fixed inter-job delays instead of a provider-side token bucket.
// Independent single-job submissions may run concurrently with a batch; the
// registry and credential pool are the only shared state.
type Orchestrator struct {
	registry *job.Registry
	gateway  Analyzer

	interJobDelay time.Duration
	retryCooldown time.Duration
	retryDelay    time.Duration
}

// New creates an orchestrator with pacing from config.
func New(registry *job.Registry, gw Analyzer, cfg config.BatchConfig) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		gateway:       gw,
		interJobDelay: time.Duration(cfg.InterJobDelaySecs) * time.Second,
		retryCooldown: time.Duration(cfg.RetryCooldownSecs) * time.Second,
		retryDelay:    time.Duration(cfg.RetryDelaySecs) * time.Second,
	}
}

// Process runs the full single-job pipeline: gateway analysis, JSON cleanup
// and parsing, token usage injection, reconciliation, and the terminal
// registry snapshot. Every failure is captured on the record; nothing
// propagates to the caller.
func (o *Orchestrator) Process(ctx context.Context, id string, content model.Content, documentName string) {
	// A job entering from the batch retry pass keeps its retrying status
	// through the progress snapshots; everything else shows processing.
	status := job.StatusProcessing
	if rec, err := o.registry.Get(id); err == nil && rec.Status == job.StatusRetrying {
		status = job.StatusRetrying
	}

	o.registry.Update(id, job.Record{Status: status, Progress: 20, Message: "Extracting content"})
	o.registry.Update(id, job.Record{Status: status, Progress: 50, Message: "AI analysis (vision + fraud)"})

	raw, usage, err := o.gateway.Analyze(ctx, content, documentName)
	if err != nil {
		o.fail(id, documentName, "AI analysis failed: "+err.Error())
		return
	}

	var result model.ExtractionResult
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &result); err != nil {
		o.fail(id, documentName, "unparseable model output: "+err.Error())
		return
	}

	result.TokenUsage = usage
	reconcile.Apply(&result)

	o.registry.Update(id, job.Record{
		Status:   job.StatusCompleted,
		Progress: 100,
		Message:  "Success",
		Result:   &result,
	})

	zap.L().Info("job completed",
		zap.String("job_id", id),
		zap.String("document", documentName),
		zap.Float64("calculated_total", result.Financials.CalculatedTotal),
		zap.Bool("math_mismatch", result.FraudAnalysis.MathMismatchDetected),
	)
}

func (o *Orchestrator) fail(id, documentName, msg string) {
	o.registry.Update(id, job.Record{Status: job.StatusFailed, Progress: 0, Error: msg})
	zap.L().Error("job failed",
		zap.String("job_id", id),
		zap.String("document", documentName),
		zap.String("error", msg),
	)
}

// RunBatch processes jobs in submission order, then makes exactly one more
// pass over the jobs that failed, in their original encounter order. A job
// failing both passes stays failed for this batch; there is no third pass.
func (o *Orchestrator) RunBatch(ctx context.Context, jobs []BatchJob) {
	zap.L().Info("batch started", zap.Int("jobs", len(jobs)))

	failed := o.runPass(ctx, jobs, o.interJobDelay, false)
	if len(failed) == 0 || ctx.Err() != nil {
		zap.L().Info("batch finished", zap.Int("failed", len(failed)))
		return
	}

	zap.L().Info("retrying failed jobs after cooldown",
		zap.Int("failed", len(failed)),
		zap.Duration("cooldown", o.retryCooldown),
	)
	if !sleepCtx(ctx, o.retryCooldown) {
		return
	}

	stillFailed := o.runPass(ctx, failed, o.retryDelay, true)
	zap.L().Info("batch finished", zap.Int("failed", len(stillFailed)))
}

// runPass is the single orchestration primitive behind both batch passes:
// process each job in order with a fixed delay between jobs (none before the
// first or after the last), collecting failures in encounter order.
func (o *Orchestrator) runPass(ctx context.Context, jobs []BatchJob, delay time.Duration, retryPass bool) []BatchJob {
	pacer := rate.NewLimiter(every(delay), 1)

	var failed []BatchJob
	for _, bj := range jobs {
		if err := pacer.Wait(ctx); err != nil {
			return failed
		}

		if retryPass {
			o.registry.Update(bj.ID, job.Record{
				Status:   job.StatusRetrying,
				Progress: 0,
				Message:  "Retrying failed job",
			})
		}

		o.Process(ctx, bj.ID, bj.Content, bj.Name)

		if rec, err := o.registry.Get(bj.ID); err == nil && rec.Status == job.StatusFailed {
			failed = append(failed, bj)
		}
	}
	return failed
}

func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// sleepCtx sleeps for d unless the context is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
