package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		Workers:        4,
		BatchSize:      10,
	}
}

func TestExecuteStage_RetryThenSucceed(t *testing.T) {
	o := NewOrchestrator(nil, testOptions())

	var calls atomic.Int32
	result := o.ExecuteStage(context.Background(), "flaky", nil, "in",
		func(ctx context.Context, input any) (any, error) {
			if calls.Add(1) <= 3 {
				return nil, errors.New("transient")
			}
			return "out", nil
		})

	if result.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", result.Status)
	}
	if result.CacheHit {
		t.Error("freshly executed stage must not be flagged cache_hit")
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("work function called %d times, want 4 (3 retries + final success)", got)
	}
	if result.Result != "out" {
		t.Errorf("result = %v, want out", result.Result)
	}
}

func TestExecuteStage_ExhaustedRetriesFail(t *testing.T) {
	o := NewOrchestrator(nil, testOptions())

	var calls atomic.Int32
	result := o.ExecuteStage(context.Background(), "doomed", nil, nil,
		func(ctx context.Context, input any) (any, error) {
			calls.Add(1)
			return nil, errors.New("always broken")
		})

	if result.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if result.Error != "always broken" {
		t.Errorf("error = %q, want the last attempt's error", result.Error)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("work function called %d times, want max_retries+1 = 4", got)
	}
}

func TestExecuteStage_DependencyGating(t *testing.T) {
	o := NewOrchestrator(nil, testOptions())

	o.ExecuteStage(context.Background(), "base", nil, nil,
		func(ctx context.Context, input any) (any, error) {
			return nil, errors.New("broken")
		})

	var calls atomic.Int32
	result := o.ExecuteStage(context.Background(), "dependent", []string{"base"}, nil,
		func(ctx context.Context, input any) (any, error) {
			calls.Add(1)
			return "unreachable", nil
		})

	if result.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", result.Status)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("work function of a skipped stage was called %d times", got)
	}

	// A dependency that never ran at all gates the same way.
	result = o.ExecuteStage(context.Background(), "orphan", []string{"never_ran"}, nil,
		func(ctx context.Context, input any) (any, error) {
			calls.Add(1)
			return nil, nil
		})
	if result.Status != StatusSkipped || calls.Load() != 0 {
		t.Errorf("unknown dependency should skip without executing, got %q", result.Status)
	}
}

func TestExecuteStage_FatalStopsRetrying(t *testing.T) {
	o := NewOrchestrator(nil, testOptions())

	var calls atomic.Int32
	result := o.ExecuteStage(context.Background(), "fatal", nil, nil,
		func(ctx context.Context, input any) (any, error) {
			calls.Add(1)
			return nil, Fatal(errors.New("unrecoverable"))
		})

	if result.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fatal error retried: %d calls", got)
	}
}

func TestExecuteStage_PanicBecomesFailure(t *testing.T) {
	o := NewOrchestrator(nil, Options{
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
	})

	result := o.ExecuteStage(context.Background(), "panicky", nil, nil,
		func(ctx context.Context, input any) (any, error) {
			panic("boom")
		})

	if result.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if result.Error == "" {
		t.Error("panic must surface as the stage error")
	}
}

func TestExecuteStage_CacheHit(t *testing.T) {
	cache := NewStageCache(16, nil)
	o := NewOrchestrator(cache, testOptions())

	var calls atomic.Int32
	work := func(ctx context.Context, input any) (any, error) {
		calls.Add(1)
		return map[string]any{"value": "computed"}, nil
	}

	first := o.ExecuteStage(context.Background(), "cached", nil, "same-input", work)
	if first.Status != StatusCompleted || first.CacheHit {
		t.Fatalf("first run: status=%q cache_hit=%v", first.Status, first.CacheHit)
	}

	second := o.ExecuteStage(context.Background(), "cached", nil, "same-input", work)
	if second.Status != StatusCompleted {
		t.Fatalf("second run status = %q", second.Status)
	}
	if !second.CacheHit {
		t.Error("second run with identical input should be a cache hit")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("work function called %d times, want 1", got)
	}

	decoded, ok := second.Result.(map[string]any)
	if !ok || decoded["value"] != "computed" {
		t.Errorf("cached payload = %#v, want decoded JSON object", second.Result)
	}
}

func TestExecuteStage_DifferentInputMisses(t *testing.T) {
	cache := NewStageCache(16, nil)
	o := NewOrchestrator(cache, testOptions())

	var calls atomic.Int32
	work := func(ctx context.Context, input any) (any, error) {
		calls.Add(1)
		return "ok", nil
	}

	o.ExecuteStage(context.Background(), "stage", nil, "input-a", work)
	o.ExecuteStage(context.Background(), "stage", nil, "input-b", work)
	if got := calls.Load(); got != 2 {
		t.Errorf("different inputs must not share cache entries, got %d calls", got)
	}
}

func TestReport_Aggregates(t *testing.T) {
	cache := NewStageCache(16, nil)
	o := NewOrchestrator(cache, testOptions())
	ctx := context.Background()

	ok := func(ctx context.Context, input any) (any, error) { return "x", nil }
	o.ExecuteStage(ctx, "one", nil, 1, ok)
	o.ExecuteStage(ctx, "one_again", nil, 1, ok) // same input, different stage: miss
	o.ExecuteStage(ctx, "bad", nil, 2, func(ctx context.Context, input any) (any, error) {
		return nil, Fatal(errors.New("no"))
	})
	o.ExecuteStage(ctx, "gated", []string{"bad"}, 3, ok)

	report := o.Report()
	if report.Total != 4 {
		t.Errorf("total = %d, want 4", report.Total)
	}
	if report.Completed != 2 || report.Failed != 1 || report.Skipped != 1 {
		t.Errorf("completed/failed/skipped = %d/%d/%d, want 2/1/1",
			report.Completed, report.Failed, report.Skipped)
	}
	if report.RunID == "" {
		t.Error("report must carry the run ID")
	}
	if len(report.Stages) != 4 || report.Stages[0].StageName != "one" {
		t.Errorf("stages must be recorded in invocation order, got %v", report.Stages)
	}
}

func TestSaveReport_WritesJSON(t *testing.T) {
	o := NewOrchestrator(nil, testOptions())
	o.ExecuteStage(context.Background(), "only", nil, nil,
		func(ctx context.Context, input any) (any, error) { return 42, nil })

	path := t.TempDir() + "/nested/report.json"
	if err := o.SaveReport(path); err != nil {
		t.Fatalf("save report: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Total != 1 || report.Stages[0].StageName != "only" {
		t.Errorf("unexpected report contents: %+v", report)
	}
}
