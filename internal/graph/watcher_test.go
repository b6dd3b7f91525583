package graph

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSourceWatcher_FlushInvalidatesCachedSources(t *testing.T) {
	var builds atomic.Int32
	build := func(ctx context.Context, sourceID string) (*Bundle, error) {
		builds.Add(1)
		return BuildBundle(&SymbolTable{Symbols: []Symbol{
			{FullName: "X", Kind: KindType, FilePath: "x.cs", LineNumber: 1},
		}}), nil
	}
	cache := NewBundleCache(build)
	if _, err := cache.Get(context.Background(), "tracked"); err != nil {
		t.Fatal(err)
	}

	w, err := NewSourceWatcher(cache, time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	w.mu.Lock()
	w.pending["tracked"] = true
	w.pending["never-cached"] = true
	w.mu.Unlock()
	w.flush()

	if _, ok := cache.Peek("tracked"); ok {
		t.Error("cached source must be invalidated by flush")
	}
	if _, err := cache.Get(context.Background(), "tracked"); err != nil {
		t.Fatal(err)
	}
	if got := builds.Load(); got != 2 {
		t.Errorf("expected a rebuild after invalidation, got %d builds", got)
	}

	w.mu.Lock()
	pending := len(w.pending)
	w.mu.Unlock()
	if pending != 0 {
		t.Errorf("flush must clear pending sources, %d left", pending)
	}
}
