package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Report is the persisted record of one orchestrator run: every stage
// result plus aggregate counters.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
	Total      int           `json:"total_stages"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	CacheHits  int           `json:"cache_hits"`
	Stages     []StageResult `json:"stages"`
}

// Report snapshots the run so far, stages in invocation order.
func (o *Orchestrator) Report() Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	report := Report{
		RunID:      o.runID,
		StartedAt:  o.started,
		FinishedAt: now,
		Duration:   now.Sub(o.started),
		Total:      len(o.order),
		Stages:     make([]StageResult, 0, len(o.order)),
	}
	for _, stage := range o.order {
		result := o.results[stage]
		report.Stages = append(report.Stages, result)
		switch result.Status {
		case StatusCompleted:
			report.Completed++
		case StatusFailed:
			report.Failed++
		case StatusSkipped:
			report.Skipped++
		}
		if result.CacheHit {
			report.CacheHits++
		}
	}
	return report
}

// SaveReport writes the run report as JSON. The write goes through a temp
// file and rename so a crash never leaves a truncated report behind.
func (o *Orchestrator) SaveReport(path string) error {
	report := o.Report()

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory %q: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize run report: %w", err)
	}

	slog.Info("run report saved", "run", report.RunID, "path", path,
		"completed", report.Completed, "failed", report.Failed, "cache_hits", report.CacheHits)
	return nil
}
