package util

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(1, 2)

	if !l.Allow(1) {
		t.Error("first event within burst should be allowed")
	}
	if !l.Allow(1) {
		t.Error("second event within burst should be allowed")
	}
	if l.Allow(1) {
		t.Error("third immediate event should be throttled")
	}
}

func TestLimiter_NilNeverBlocks(t *testing.T) {
	var l *Limiter

	if !l.Allow(10) {
		t.Error("nil limiter must always allow")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, 100); err != nil {
		t.Errorf("nil limiter Wait should return nil, got %v", err)
	}
}
