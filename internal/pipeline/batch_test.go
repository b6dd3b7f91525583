package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"gapscan/internal/shared/util"
)

func TestExecuteParallelBatch_AllItemsProcessed(t *testing.T) {
	o := NewOrchestrator(nil, Options{
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		Workers:        4,
		BatchSize:      10,
	})

	items := make([]any, 23)
	for i := range items {
		items[i] = i
	}

	var processed atomic.Int32
	var inFlight, peak atomic.Int32
	results := o.ExecuteParallelBatch(context.Background(), "fanout", items,
		func(ctx context.Context, item any) (any, error) {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			processed.Add(1)
			return item.(int) * 2, nil
		})

	if got := processed.Load(); got != 23 {
		t.Errorf("processed %d items, want all 23", got)
	}
	if len(results) != 23 {
		t.Errorf("result set size = %d, want 23", len(results))
	}
	if p := peak.Load(); p > 4 {
		t.Errorf("observed %d concurrent items, worker pool is bounded at 4", p)
	}

	seen := make(map[int]any, len(results))
	for _, r := range results {
		seen[r.Index] = r.Output
	}
	for i := 0; i < 23; i++ {
		if seen[i] != i*2 {
			t.Errorf("item %d: output = %v, want %d", i, seen[i], i*2)
		}
	}
}

func TestExecuteParallelBatch_FailedItemsDropped(t *testing.T) {
	o := NewOrchestrator(nil, Options{
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		Workers:        2,
		BatchSize:      5,
	})

	items := []any{0, 1, 2, 3, 4, 5, 6}
	results := o.ExecuteParallelBatch(context.Background(), "partial", items,
		func(ctx context.Context, item any) (any, error) {
			if item.(int)%2 == 1 {
				return nil, errors.New("odd item")
			}
			return item, nil
		})

	if len(results) != 4 {
		t.Fatalf("result set size = %d, want the 4 even items", len(results))
	}
	for _, r := range results {
		if r.Output.(int)%2 != 0 {
			t.Errorf("failed item %v leaked into results", r.Output)
		}
	}
}

func TestExecuteParallelBatch_TimeoutDropsItem(t *testing.T) {
	o := NewOrchestrator(nil, Options{
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		Workers:        2,
		BatchSize:      5,
		ItemTimeout:    20 * time.Millisecond,
	})

	items := []any{"fast", "slow", "fast2"}
	results := o.ExecuteParallelBatch(context.Background(), "timeouts", items,
		func(ctx context.Context, item any) (any, error) {
			if item == "slow" {
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return item, nil
		})

	if len(results) != 2 {
		t.Fatalf("result set size = %d, want 2 (slow item timed out)", len(results))
	}
	for _, r := range results {
		if r.Output == "slow" {
			t.Error("timed-out item leaked into results")
		}
	}
}

func TestExecuteParallelBatch_PanicIsolatedToItem(t *testing.T) {
	o := NewOrchestrator(nil, Options{
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		Workers:        2,
		BatchSize:      10,
	})

	items := []any{1, 2, 3}
	results := o.ExecuteParallelBatch(context.Background(), "panics", items,
		func(ctx context.Context, item any) (any, error) {
			if item.(int) == 2 {
				panic("item blew up")
			}
			return item, nil
		})

	if len(results) != 2 {
		t.Errorf("result set size = %d, want 2 surviving items", len(results))
	}
}

func TestExecuteParallelBatch_LimiterErrorDrainsInFlightItems(t *testing.T) {
	o := NewOrchestrator(nil, Options{
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		Workers:        2,
		BatchSize:      10,
		// One burst token, then the next token is ~100s away: the second
		// submission's Wait errors immediately against the deadline below
		// while the first item is still running.
		Limiter: util.NewLimiter(0.01, 1),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var finished atomic.Int32
	results := o.ExecuteParallelBatch(ctx, "paced", []any{"a", "b"},
		func(ctx context.Context, item any) (any, error) {
			time.Sleep(30 * time.Millisecond)
			finished.Add(1)
			return item, nil
		})

	if got := finished.Load(); got != 1 {
		t.Fatalf("returned with a submitted item still in flight: finished=%d, want 1", got)
	}
	if len(results) != 1 || results[0].Output != "a" {
		t.Fatalf("in-flight item's result lost: %v", results)
	}
}

func TestExecuteParallelBatch_Empty(t *testing.T) {
	o := NewOrchestrator(nil, testOptions())
	if results := o.ExecuteParallelBatch(context.Background(), "none", nil, nil); results != nil {
		t.Errorf("empty input should yield nil results, got %v", results)
	}
}
