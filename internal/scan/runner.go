package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gapscan/internal/config"
	"gapscan/internal/core/errors"
	"gapscan/internal/graph"
	"gapscan/internal/history"
	"gapscan/internal/pattern"
	"gapscan/internal/pipeline"
	"gapscan/internal/query"
	"gapscan/internal/shared/util"
)

// impactSeedLimit bounds how many top candidates seed the impact analysis.
const impactSeedLimit = 5

// Outcome is everything a completed scan produced.
type Outcome struct {
	RunID         string                           `json:"run_id"`
	Intent        ChangeIntent                     `json:"intent"`
	Candidates    []Candidate                      `json:"candidates"`
	Relationships map[string]query.RelationshipSet `json:"relationships"`
	Impact        query.ImpactReport               `json:"impact"`
	Clusters      []query.Cluster                  `json:"clusters"`
	ReportPath    string                           `json:"report_path"`
}

// Runner wires the scan stages through the orchestrator. Collaborator
// fields left nil get the bundled file/heuristic implementations.
type Runner struct {
	Config   *config.Config
	Bundles  *graph.BundleCache
	Tickets  TicketSource
	Intents  IntentExtractor
	Searcher CandidateSearcher

	// OnStage, when set, observes every terminal stage result. The
	// progress UI hooks in here.
	OnStage func(pipeline.StageResult)

	orch     *pipeline.Orchestrator
	cache    *pipeline.StageCache
	detector *pattern.Detector
	bundle   *graph.Bundle
	service  *query.Service
}

// NewRunner prepares a runner with the stage cache and orchestrator built
// from config. A stage-cache open failure degrades to memory-only caching.
func NewRunner(cfg *config.Config, bundles *graph.BundleCache) (*Runner, error) {
	detector, err := pattern.NewDetector(cfg.Patterns.ConfigGlobs)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "compile config-file globs")
	}

	var cache *pipeline.StageCache
	if cfg.Pipeline.CacheOn() {
		var store pipeline.Store
		if sqlStore, err := pipeline.OpenSQLiteStore(cfg.StageCachePath()); err != nil {
			slog.Warn("stage cache store unavailable, using memory only", "error", err)
		} else {
			store = sqlStore
		}
		cache = pipeline.NewStageCache(cfg.Pipeline.CacheMemoryItems, store)
	}

	opts := pipeline.Options{
		MaxRetries:     cfg.Pipeline.MaxRetries,
		RetryBaseDelay: cfg.Pipeline.RetryBaseDelay,
		RetryMaxDelay:  cfg.Pipeline.RetryMaxDelay,
		Workers:        cfg.Pipeline.ParallelWorkers,
		BatchSize:      cfg.Pipeline.BatchSize,
		ItemTimeout:    cfg.Pipeline.ItemTimeout,
	}
	if cfg.Pipeline.SubmitRate > 0 {
		opts.Limiter = util.NewLimiter(cfg.Pipeline.SubmitRate, cfg.Pipeline.SubmitBurst)
	}

	return &Runner{
		Config:   cfg,
		Bundles:  bundles,
		Tickets:  FileTicketSource{},
		Intents:  KeywordIntentExtractor{},
		orch:     pipeline.NewOrchestrator(cache, opts),
		cache:    cache,
		detector: detector,
	}, nil
}

// Run drives the full scan for one ticket. The execution report is saved
// even when a stage fails partway.
func (r *Runner) Run(ctx context.Context, ticketID string) (outcome *Outcome, err error) {
	outDir := r.Config.Paths.OutputDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create output directory")
	}

	reportPath := filepath.Join(outDir, "run_report.json")
	defer func() {
		if saveErr := r.orch.SaveReport(reportPath); saveErr != nil {
			slog.Error("failed to save run report", "error", saveErr)
		}
		r.saveHistory(ticketID, outcome)
	}()

	slog.Info("scan starting", "run", r.orch.RunID(), "ticket", ticketID)

	ticketText, err := r.runTicketProcessing(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	intent, err := r.runIntentExtraction(ctx, ticketText)
	if err != nil {
		return nil, err
	}
	if err := r.runGraphBuild(ctx); err != nil {
		return nil, err
	}
	candidates, err := r.runCandidateSearch(ctx, intent)
	if err != nil {
		return nil, err
	}
	relationships := r.runRelationshipExpansion(ctx, candidates)
	impact, err := r.runImpactAnalysis(ctx, candidates, intent)
	if err != nil {
		return nil, err
	}
	clusters, err := r.runClustering(ctx, candidates)
	if err != nil {
		return nil, err
	}

	outcome = &Outcome{
		RunID:         r.orch.RunID(),
		Intent:        intent,
		Candidates:    candidates,
		Relationships: relationships,
		Impact:        impact,
		Clusters:      clusters,
		ReportPath:    reportPath,
	}
	if err := r.runReportGeneration(ctx, outcome); err != nil {
		return nil, err
	}

	slog.Info("scan finished", "run", outcome.RunID,
		"candidates", len(candidates), "clusters", len(clusters), "risk", impact.RiskScore)
	return outcome, nil
}

func (r *Runner) runTicketProcessing(ctx context.Context, ticketID string) (string, error) {
	result := r.execute(ctx, "ticket_processing", nil, ticketID,
		func(ctx context.Context, input any) (any, error) {
			return r.Tickets.Fetch(ctx, input.(string))
		})
	var text string
	if err := stagePayload(result, &text); err != nil {
		return "", err
	}
	r.writeArtifactText("cleaned_ticket.txt", text)
	return text, nil
}

func (r *Runner) runIntentExtraction(ctx context.Context, ticketText string) (ChangeIntent, error) {
	result := r.execute(ctx, "intent_extraction", []string{"ticket_processing"}, ticketText,
		func(ctx context.Context, input any) (any, error) {
			return r.Intents.Extract(ctx, input.(string))
		})
	var intent ChangeIntent
	if err := stagePayload(result, &intent); err != nil {
		return ChangeIntent{}, err
	}
	r.writeArtifactJSON("intent.json", intent)
	return intent, nil
}

// runGraphBuild warms the bundle cache. Its stage payload is only a summary;
// the bundle itself lives in the shared cache, which dedupes concurrent and
// repeated loads.
func (r *Runner) runGraphBuild(ctx context.Context) error {
	source := r.Config.Graph.Source
	result := r.execute(ctx, "graph_build", nil, source,
		func(ctx context.Context, input any) (any, error) {
			bundle, err := r.Bundles.Get(ctx, input.(string))
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"files":   len(bundle.SymbolsByFile),
				"symbols": bundle.SymbolGraph.NodeCount(),
				"edges":   bundle.SymbolGraph.EdgeCount(),
			}, nil
		})
	if !result.Completed() {
		return stageError(result)
	}
	// Re-resolve from the cache: on a stage-cache hit the work fn did not run.
	bundle, err := r.Bundles.Get(ctx, source)
	if err != nil {
		return errors.Wrap(err, errors.CodeStageFailed, "load graph bundle")
	}
	r.bundle = bundle
	r.service = query.NewService(bundle, r.detector, r.Config.Graph.FanoutLimit)
	return nil
}

func (r *Runner) runCandidateSearch(ctx context.Context, intent ChangeIntent) ([]Candidate, error) {
	searcher := r.Searcher
	if searcher == nil {
		searcher = IndexCandidateSearcher{Bundle: r.bundle}
	}
	result := r.execute(ctx, "candidate_search", []string{"intent_extraction", "graph_build"}, intent,
		func(ctx context.Context, input any) (any, error) {
			candidates, err := searcher.Search(ctx, intent, r.Config.Pipeline.BatchSize*2)
			if err != nil {
				return nil, err
			}
			if len(candidates) == 0 {
				return nil, pipeline.Fatal(
					errors.New(errors.CodeNotFound, "no candidate files matched the intent"))
			}
			return candidates, nil
		})
	var candidates []Candidate
	if err := stagePayload(result, &candidates); err != nil {
		return nil, err
	}
	r.writeArtifactJSON("candidates.json", candidates)
	return candidates, nil
}

// runRelationshipExpansion fans relationship queries out over the
// candidates. Item failures only shrink the map, they never fail the scan.
func (r *Runner) runRelationshipExpansion(ctx context.Context, candidates []Candidate) map[string]query.RelationshipSet {
	items := make([]any, len(candidates))
	for i, c := range candidates {
		items[i] = c.FilePath
	}

	results := r.orch.ExecuteParallelBatch(ctx, "relationship_expansion", items,
		func(ctx context.Context, item any) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return r.service.Relationships(ctx, item.(string), nil), nil
		})

	relationships := make(map[string]query.RelationshipSet, len(results))
	for _, item := range results {
		rels, ok := item.Output.(query.RelationshipSet)
		if !ok {
			continue
		}
		relationships[items[item.Index].(string)] = rels
	}
	r.writeArtifactJSON("relationships.json", relationships)
	return relationships
}

func (r *Runner) runImpactAnalysis(ctx context.Context, candidates []Candidate, intent ChangeIntent) (query.ImpactReport, error) {
	seeds := make([]string, 0, impactSeedLimit)
	for _, c := range candidates {
		if len(seeds) == impactSeedLimit {
			break
		}
		seeds = append(seeds, c.FilePath)
	}

	result := r.execute(ctx, "impact_analysis", []string{"candidate_search"},
		map[string]any{"seeds": seeds, "intent": intent},
		func(ctx context.Context, input any) (any, error) {
			return r.service.ImpactAnalysis(ctx, seeds, query.ChangeContext{
				Action:        intent.Action,
				Category:      intent.Category,
				OperationType: intent.OperationType,
			}), nil
		})
	var impact query.ImpactReport
	if err := stagePayload(result, &impact); err != nil {
		return query.ImpactReport{}, err
	}
	r.writeArtifactJSON("impact.json", impact)
	return impact, nil
}

func (r *Runner) runClustering(ctx context.Context, candidates []Candidate) ([]query.Cluster, error) {
	files := make([]string, len(candidates))
	for i, c := range candidates {
		files[i] = c.FilePath
	}

	result := r.execute(ctx, "clustering", []string{"candidate_search"}, files,
		func(ctx context.Context, input any) (any, error) {
			return r.service.Clusters(ctx, files), nil
		})
	var clusters []query.Cluster
	if err := stagePayload(result, &clusters); err != nil {
		return nil, err
	}
	r.writeArtifactJSON("clusters.json", clusters)
	return clusters, nil
}

func (r *Runner) runReportGeneration(ctx context.Context, outcome *Outcome) error {
	result := r.execute(ctx, "report_generation", []string{"impact_analysis", "clustering"},
		outcome.RunID,
		func(ctx context.Context, input any) (any, error) {
			path := filepath.Join(r.Config.Paths.OutputDir, "scan_outcome.json")
			raw, err := json.MarshalIndent(outcome, "", "  ")
			if err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				return nil, err
			}
			return map[string]any{"path": path}, nil
		})
	if !result.Completed() {
		return stageError(result)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, stage string, deps []string, input any, fn pipeline.WorkFunc) pipeline.StageResult {
	result := r.orch.ExecuteStage(ctx, stage, deps, input, fn)
	if r.OnStage != nil {
		r.OnStage(result)
	}
	return result
}

// saveHistory appends this run's summary to the run history, best-effort.
// outcome is nil when the run failed partway.
func (r *Runner) saveHistory(ticket string, outcome *Outcome) {
	store, err := history.Open(filepath.Join(r.Config.Paths.StateDir, "history.db"))
	if err != nil {
		slog.Warn("run history unavailable", "error", err)
		return
	}
	defer store.Close()

	report := r.orch.Report()
	record := history.RunRecord{
		RunID:     report.RunID,
		Ticket:    ticket,
		Timestamp: report.StartedAt,
		Duration:  report.Duration,
		Stages:    report.Total,
		Completed: report.Completed,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
		CacheHits: report.CacheHits,
	}
	if outcome != nil {
		record.Candidates = len(outcome.Candidates)
		record.Clusters = len(outcome.Clusters)
		record.RiskScore = outcome.Impact.RiskScore
	}
	if err := store.SaveRun(record); err != nil {
		slog.Warn("failed to record run history", "error", err)
	}
}

// Close releases the stage cache's persistence backend.
func (r *Runner) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

// stagePayload escalates non-completed stages as errors and decodes the
// payload into its concrete type. Cached payloads arrive as generic JSON
// values, so decoding goes through a JSON round trip either way.
func stagePayload(result pipeline.StageResult, out any) error {
	if !result.Completed() {
		return stageError(result)
	}
	raw, err := json.Marshal(result.Result)
	if err != nil {
		return errors.AddContext(
			errors.Wrap(err, errors.CodeInternal, "encode stage payload"),
			errors.CtxStage, result.StageName)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.AddContext(
			errors.Wrap(err, errors.CodeInternal, "decode stage payload"),
			errors.CtxStage, result.StageName)
	}
	return nil
}

func stageError(result pipeline.StageResult) error {
	return errors.AddContext(
		errors.New(errors.CodeStageFailed,
			fmt.Sprintf("stage %s ended %s: %s", result.StageName, result.Status, result.Error)),
		errors.CtxStage, result.StageName)
}

func (r *Runner) writeArtifactText(name, text string) {
	path := filepath.Join(r.Config.Paths.OutputDir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		slog.Warn("failed to write artifact", "path", path, "error", err)
	}
}

func (r *Runner) writeArtifactJSON(name string, value any) {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		slog.Warn("failed to encode artifact", "name", name, "error", err)
		return
	}
	r.writeArtifactText(name, string(raw))
}
