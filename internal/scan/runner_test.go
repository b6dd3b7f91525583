package scan

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapscan/internal/config"
	"gapscan/internal/graph"
	"gapscan/internal/pipeline"
)

const scanArtifact = `{"Symbols": [
	{"FullName": "App.PaymentService.Charge", "Kind": "Method", "FilePath": "PaymentService.cs", "LineNumber": 10,
	 "Relationships": [{"Kind": "Calls", "TargetSymbolFullName": "App.Billing.Invoice"}]},
	{"FullName": "App.Billing.Invoice", "Kind": "Method", "FilePath": "Billing.cs", "LineNumber": 5},
	{"FullName": "App.Startup.Configure", "Kind": "Method", "FilePath": "Startup.cs", "LineNumber": 3}
]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	graphPath := filepath.Join(root, "code_graph.json")
	require.NoError(t, os.WriteFile(graphPath, []byte(scanArtifact), 0o644))

	cfg := config.Default()
	cfg.Graph.Source = graphPath
	cfg.Paths.OutputDir = filepath.Join(root, "out")
	cfg.Paths.CacheDir = filepath.Join(root, "cache")
	cfg.Paths.StateDir = filepath.Join(root, "state")
	cfg.Pipeline.RetryBaseDelay = 1
	cfg.Pipeline.RetryMaxDelay = 2
	return cfg
}

func writeTicket(t *testing.T, cfg *config.Config, text string) string {
	t.Helper()
	path := filepath.Join(filepath.Dir(cfg.Paths.OutputDir), "ticket.txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestRunner_FullScan(t *testing.T) {
	cfg := testConfig(t)
	ticket := writeTicket(t, cfg,
		"Add tracing span instrumentation to PaymentService charge flow")

	runner, err := NewRunner(cfg, graph.NewBundleCache(nil))
	require.NoError(t, err)
	defer runner.Close()

	var stages []pipeline.StageResult
	runner.OnStage = func(r pipeline.StageResult) { stages = append(stages, r) }

	outcome, err := runner.Run(context.Background(), ticket)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, "CREATE", outcome.Intent.Action)
	assert.NotEmpty(t, outcome.Candidates)
	assert.Equal(t, "PaymentService.cs", outcome.Candidates[0].FilePath)
	assert.Contains(t, outcome.Impact.Direct, "PaymentService.cs")
	assert.Contains(t, outcome.Impact.Indirect, "Billing.cs")
	assert.GreaterOrEqual(t, outcome.Impact.RiskScore, 1)
	assert.LessOrEqual(t, outcome.Impact.RiskScore, 10)

	for _, result := range stages {
		assert.Equal(t, pipeline.StatusCompleted, result.Status,
			"stage %s should complete", result.StageName)
	}

	for _, artifact := range []string{
		"cleaned_ticket.txt", "intent.json", "candidates.json",
		"relationships.json", "impact.json", "clusters.json",
		"scan_outcome.json", "run_report.json",
	} {
		_, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, artifact))
		assert.NoError(t, err, "artifact %s should exist", artifact)
	}

	raw, err := os.ReadFile(outcome.ReportPath)
	require.NoError(t, err)
	var report pipeline.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, report.Total, report.Completed)
	assert.Zero(t, report.Failed)
}

func TestRunner_SecondRunHitsStageCache(t *testing.T) {
	cfg := testConfig(t)
	ticket := writeTicket(t, cfg, "Add span tracing to PaymentService")

	run := func() pipeline.Report {
		runner, err := NewRunner(cfg, graph.NewBundleCache(nil))
		require.NoError(t, err)
		defer runner.Close()

		outcome, err := runner.Run(context.Background(), ticket)
		require.NoError(t, err)

		raw, err := os.ReadFile(outcome.ReportPath)
		require.NoError(t, err)
		var report pipeline.Report
		require.NoError(t, json.Unmarshal(raw, &report))
		return report
	}

	first := run()
	assert.Zero(t, first.CacheHits)

	second := run()
	assert.Positive(t, second.CacheHits,
		"a repeat run over identical inputs should serve stages from the cache")
	assert.Equal(t, second.Total, second.Completed)
}

func TestRunner_MissingTicketFailsButSavesReport(t *testing.T) {
	cfg := testConfig(t)

	runner, err := NewRunner(cfg, graph.NewBundleCache(nil))
	require.NoError(t, err)
	defer runner.Close()

	_, err = runner.Run(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(cfg.Paths.OutputDir, "run_report.json"))
	assert.NoError(t, statErr, "execution report must be saved even on failure")
}
