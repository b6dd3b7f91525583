package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gapscan/internal/shared/observability"
)

// BatchItemResult pairs an item's index in the submitted slice with its
// output. Completion order is not index order.
type BatchItemResult struct {
	Index  int
	Output any
}

// ExecuteParallelBatch fans items out across a bounded worker pool, one
// batch at a time. A single item's error or timeout drops that item's
// contribution and never aborts siblings; the returned slice holds only the
// items that succeeded. The per-item timeout is soft: the result is
// abandoned but the item's goroutine is not forcibly killed.
func (o *Orchestrator) ExecuteParallelBatch(ctx context.Context, stage string, items []any, fn ItemFunc) []BatchItemResult {
	if len(items) == 0 {
		return nil
	}

	started := time.Now()
	results := make([]BatchItemResult, 0, len(items))
	var mu sync.Mutex

	for offset := 0; offset < len(items); offset += o.opts.BatchSize {
		end := offset + o.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		o.runBatch(ctx, stage, items[offset:end], offset, fn, &mu, &results)
	}

	slog.Info("parallel batch finished",
		"stage", stage, "run", o.runID,
		"items", len(items), "succeeded", len(results),
		"duration", time.Since(started))
	return results
}

func (o *Orchestrator) runBatch(ctx context.Context, stage string, batch []any, offset int, fn ItemFunc, mu *sync.Mutex, results *[]BatchItemResult) {
	sem := make(chan struct{}, o.opts.Workers)
	var wg sync.WaitGroup

	for i, item := range batch {
		if err := o.opts.Limiter.Wait(ctx, 1); err != nil {
			// Stop submitting, but still drain workers already in flight:
			// returning early would race their appends to results.
			slog.Warn("batch submission stopped", "stage", stage, "error", err)
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(index int, item any) {
			defer wg.Done()
			defer func() { <-sem }()

			output, err := o.runItem(ctx, item, fn)
			if err != nil {
				observability.BatchItemsTotal.WithLabelValues("dropped").Inc()
				slog.Warn("batch item dropped", "stage", stage, "item", index, "error", err)
				return
			}
			observability.BatchItemsTotal.WithLabelValues("succeeded").Inc()
			mu.Lock()
			*results = append(*results, BatchItemResult{Index: index, Output: output})
			mu.Unlock()
		}(offset+i, item)
	}
	wg.Wait()
}

// runItem applies the per-item timeout. On timeout the work keeps running
// in the background but its eventual result is discarded.
func (o *Orchestrator) runItem(ctx context.Context, item any, fn ItemFunc) (any, error) {
	if o.opts.ItemTimeout <= 0 {
		return runIsolated(ctx, item, WorkFunc(fn))
	}

	itemCtx, cancel := context.WithTimeout(ctx, o.opts.ItemTimeout)
	defer cancel()
	output, err := runIsolated(itemCtx, item, WorkFunc(fn))
	if err != nil && itemCtx.Err() != nil {
		return nil, fmt.Errorf("item timed out after %s: %w", o.opts.ItemTimeout, itemCtx.Err())
	}
	return output, err
}
