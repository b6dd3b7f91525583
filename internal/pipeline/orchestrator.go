package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gapscan/internal/shared/observability"
	"gapscan/internal/shared/util"
)

// Options bound the orchestrator's retry and batch behavior. Zero values
// fall back to the listed defaults.
type Options struct {
	MaxRetries     int           // extra attempts after the first (default 3)
	RetryBaseDelay time.Duration // first backoff delay, doubles per retry (default 500ms)
	RetryMaxDelay  time.Duration // backoff ceiling (default 30s)
	Workers        int           // batch worker pool size (default 4)
	BatchSize      int           // items per batch (default 10)
	ItemTimeout    time.Duration // per-item soft timeout, 0 = none
	Limiter        *util.Limiter // optional batch submission pacing
}

func (o *Options) applyDefaults() {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 30 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
}

// Orchestrator runs named stages with dependency gating, caching, and
// retry. It never panics or errors past a stage boundary: every invocation
// produces a StageResult, and failures surface as its status.
type Orchestrator struct {
	cache *StageCache
	opts  Options
	runID string

	mu      sync.Mutex
	results map[string]StageResult
	order   []string
	started time.Time
}

// NewOrchestrator builds an orchestrator for one run. cache may be nil to
// disable stage caching.
func NewOrchestrator(cache *StageCache, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		cache:   cache,
		opts:    opts,
		runID:   uuid.NewString(),
		results: make(map[string]StageResult),
		started: time.Now(),
	}
}

// RunID identifies this orchestrator run in reports and logs.
func (o *Orchestrator) RunID() string { return o.runID }

// Result returns the recorded result for a stage, if it has run.
func (o *Orchestrator) Result(stage string) (StageResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.results[stage]
	return r, ok
}

// ExecuteStage runs one stage. Dependencies must already be completed or
// the stage is skipped without invoking fn. On a cache hit the recorded
// payload is returned as completed without re-execution; otherwise fn runs
// with retry and exponential backoff, and a success is written back to the
// cache best-effort.
func (o *Orchestrator) ExecuteStage(ctx context.Context, stage string, dependencies []string, input any, fn WorkFunc) StageResult {
	ctx, span := observability.Tracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(attribute.String("stage", stage)))
	defer span.End()

	for _, dep := range dependencies {
		if prior, ok := o.Result(dep); !ok || !prior.Completed() {
			slog.Warn("stage skipped, dependency not completed", "stage", stage, "dependency", dep)
			return o.record(StageResult{
				StageName: stage,
				Status:    StatusSkipped,
				Error:     fmt.Sprintf("dependency %q not completed", dep),
			})
		}
	}

	key, cacheable := o.cacheKey(stage, input)
	if cacheable {
		if payload, ok := o.cacheGet(ctx, key); ok {
			slog.Info("stage cache hit", "stage", stage, "run", o.runID)
			observability.StageCacheHitsTotal.Inc()
			return o.record(StageResult{
				StageName: stage,
				Status:    StatusCompleted,
				Result:    payload,
				CacheHit:  true,
			})
		}
	}

	started := time.Now()
	output, err := o.runWithRetry(ctx, stage, input, fn)
	duration := time.Since(started)
	observability.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())

	if err != nil {
		observability.StageFailuresTotal.WithLabelValues(stage).Inc()
		slog.Error("stage failed", "stage", stage, "run", o.runID, "duration", duration, "error", err)
		return o.record(StageResult{
			StageName: stage,
			Status:    StatusFailed,
			Error:     err.Error(),
			Duration:  duration,
		})
	}

	if cacheable {
		o.cachePut(ctx, stage, key, output)
	}
	slog.Info("stage completed", "stage", stage, "run", o.runID, "duration", duration)
	return o.record(StageResult{
		StageName: stage,
		Status:    StatusCompleted,
		Result:    output,
		Duration:  duration,
	})
}

// runWithRetry executes fn up to MaxRetries+1 times. The work always runs
// on its own goroutine so a panicking or slow stage cannot take down the
// orchestrating loop; panics become stage errors.
func (o *Orchestrator) runWithRetry(ctx context.Context, stage string, input any, fn WorkFunc) (any, error) {
	var lastErr error
	delay := o.opts.RetryBaseDelay

	for attempt := 1; attempt <= o.opts.MaxRetries+1; attempt++ {
		observability.StageAttemptsTotal.WithLabelValues(stage).Inc()

		output, err := runIsolated(ctx, input, fn)
		if err == nil {
			return output, nil
		}
		lastErr = err
		if IsFatal(err) {
			slog.Error("stage hit fatal error, not retrying", "stage", stage, "attempt", attempt, "error", err)
			return nil, err
		}
		if attempt > o.opts.MaxRetries {
			break
		}

		slog.Warn("stage attempt failed, retrying",
			"stage", stage, "attempt", attempt, "backoff", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > o.opts.RetryMaxDelay {
			delay = o.opts.RetryMaxDelay
		}
	}
	return nil, lastErr
}

type workOutcome struct {
	output any
	err    error
}

func runIsolated(ctx context.Context, input any, fn WorkFunc) (any, error) {
	done := make(chan workOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- workOutcome{err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		output, err := fn(ctx, input)
		done <- workOutcome{output: output, err: err}
	}()

	select {
	case outcome := <-done:
		return outcome.output, outcome.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) cacheKey(stage string, input any) (string, bool) {
	if o.cache == nil {
		return "", false
	}
	key, ok := CacheKey(stage, input)
	if !ok {
		slog.Debug("stage input not cacheable", "stage", stage)
	}
	return key, ok
}

// cacheGet decodes a stored payload. Read errors count as misses; a cached
// payload round-trips through JSON, so typed stage outputs come back as
// generic JSON values.
func (o *Orchestrator) cacheGet(ctx context.Context, key string) (any, bool) {
	payload, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		observability.StageCacheErrorsTotal.Inc()
		slog.Warn("stage cache read failed, treating as miss", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		observability.StageCacheErrorsTotal.Inc()
		slog.Warn("stage cache entry undecodable, treating as miss", "error", err)
		return nil, false
	}
	return decoded, true
}

func (o *Orchestrator) cachePut(ctx context.Context, stage, key string, output any) {
	payload, err := json.Marshal(output)
	if err != nil {
		slog.Debug("stage output not serializable, skipping cache write", "stage", stage)
		return
	}
	if err := o.cache.Put(ctx, key, payload); err != nil {
		observability.StageCacheErrorsTotal.Inc()
		slog.Warn("stage cache write failed", "stage", stage, "error", err)
	}
}

func (o *Orchestrator) record(result StageResult) StageResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.results[result.StageName]; !ok {
		o.order = append(o.order, result.StageName)
	}
	o.results[result.StageName] = result
	return result
}
