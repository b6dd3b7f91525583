package query

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gapscan/internal/graph"
	"gapscan/internal/pattern"
	"gapscan/internal/shared/observability"
)

const DefaultFanout = 5

// Service answers impact, relationship, and clustering queries over one
// graph bundle. It holds no mutable state; one instance per bundle is fine
// to share across goroutines.
type Service struct {
	bundle   *graph.Bundle
	detector *pattern.Detector
	fanout   int
}

// NewService wraps a bundle. fanout caps every relationship list; values
// below 1 fall back to DefaultFanout.
func NewService(bundle *graph.Bundle, detector *pattern.Detector, fanout int) *Service {
	if fanout < 1 {
		fanout = DefaultFanout
	}
	return &Service{bundle: bundle, detector: detector, fanout: fanout}
}

// ImpactAnalysis reports the blast radius of changing the seed files.
// Direct impact is the seed set itself; indirect impact is the one-hop
// neighborhood in the file dependency graph minus the seeds.
func (s *Service) ImpactAnalysis(ctx context.Context, seedFiles []string, change ChangeContext) ImpactReport {
	_, span := observability.Tracer.Start(ctx, "query.impact_analysis",
		trace.WithAttributes(attribute.Int("seed_count", len(seedFiles))))
	defer span.End()

	direct := make(map[string]bool, len(seedFiles))
	for _, f := range seedFiles {
		direct[f] = true
	}

	indirect := make(map[string]bool)
	for f := range direct {
		for _, p := range s.bundle.FileGraph.Predecessors(f) {
			indirect[p] = true
		}
		for _, succ := range s.bundle.FileGraph.Successors(f) {
			indirect[succ] = true
		}
	}
	for f := range direct {
		delete(indirect, f)
	}

	report := ImpactReport{
		Direct:    sortedKeys(direct),
		Indirect:  sortedKeys(indirect),
		RiskScore: s.riskScore(len(direct), len(indirect), change),
	}

	affected := append(append([]string{}, report.Direct...), report.Indirect...)
	report.Patterns = s.detectPatterns(affected)
	report.BreakingChanges = s.breakingChanges(report.Direct, change)
	report.TestRequirements = s.testRequirements(affected, change)

	span.SetAttributes(attribute.Int("risk_score", report.RiskScore))
	slog.Debug("impact analysis",
		"seeds", len(direct), "indirect", len(indirect), "risk", report.RiskScore)
	return report
}

func (s *Service) riskScore(directCount, indirectCount int, change ChangeContext) int {
	score := 2*directCount + indirectCount
	if score > 10 {
		score = 10
	}
	for _, bonus := range riskBonuses {
		if bonus.When(change) {
			score += bonus.Bonus
		}
	}
	if score > 10 {
		score = 10
	}
	if score < 0 {
		score = 0
	}
	return score
}

func (s *Service) detectPatterns(files []string) map[string][]pattern.Pattern {
	if s.detector == nil {
		return nil
	}
	out := make(map[string][]pattern.Pattern)
	for _, f := range files {
		if patterns := s.detector.Detect(f, s.bundle.Symbols(f)); len(patterns) > 0 {
			out[f] = patterns
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Service) breakingChanges(seedFiles []string, change ChangeContext) []string {
	var notes []string
	for _, rule := range breakingCtxRules {
		if rule.Match(change) {
			notes = append(notes, rule.Note)
		}
	}
	for _, rule := range breakingSeedRules {
		for _, f := range seedFiles {
			if rule.Match(f) {
				notes = append(notes, rule.Note)
				break
			}
		}
	}
	return notes
}

func (s *Service) testRequirements(affected []string, change ChangeContext) []string {
	seen := make(map[string]bool)
	var notes []string
	add := func(note string) {
		if !seen[note] {
			seen[note] = true
			notes = append(notes, note)
		}
	}

	for _, note := range testBaseNotes {
		add(note)
	}
	for _, rule := range testFileRules {
		for _, f := range affected {
			if rule.Match(f) {
				add(rule.Note)
				break
			}
		}
	}
	for _, rule := range testCtxRules {
		if rule.Match(change) {
			add(rule.Note)
		}
	}
	return notes
}

// Relationships answers one-hop queries about a file, or about a symbol
// full name, which resolves to its owning file. Unknown kinds get an empty
// list rather than an error; every list is truncated to the fan-out cap so
// downstream consumers see bounded context.
func (s *Service) Relationships(ctx context.Context, target string, kinds []string) RelationshipSet {
	_, span := observability.Tracer.Start(ctx, "query.relationships",
		trace.WithAttributes(attribute.String("target", target)))
	defer span.End()

	file := target
	if len(s.bundle.Symbols(file)) == 0 {
		if owner, ok := s.bundle.OwnerOf(target); ok {
			file = owner
		}
	}

	if len(kinds) == 0 {
		kinds = []string{RelKindCalls, RelKindCalledBy, RelKindDependencies, RelKindDependents}
	}

	out := make(RelationshipSet, len(kinds))
	for _, kind := range kinds {
		switch kind {
		case RelKindCalls:
			out[kind] = s.cap(s.methodNeighbors(file, s.bundle.CallGraph.Successors))
		case RelKindCalledBy:
			out[kind] = s.cap(s.methodNeighbors(file, s.bundle.CallGraph.Predecessors))
		case RelKindDependencies:
			out[kind] = s.cap(s.bundle.FileGraph.Successors(file))
		case RelKindDependents:
			out[kind] = s.cap(s.bundle.FileGraph.Predecessors(file))
		default:
			out[kind] = nil
		}
	}
	return out
}

// methodNeighbors flattens a call-graph direction over every method the
// file owns, deduplicated and sorted.
func (s *Service) methodNeighbors(file string, direction func(string) []string) []string {
	seen := make(map[string]bool)
	for _, method := range s.bundle.Methods(file) {
		for _, neighbor := range direction(method.FullName) {
			seen[neighbor] = true
		}
	}
	return sortedKeys(seen)
}

func (s *Service) cap(list []string) []string {
	if len(list) > s.fanout {
		return list[:s.fanout]
	}
	return list
}

// Clusters partitions the candidate files into connected groups. Each file
// lands in at most one cluster; files whose neighborhood within the
// candidate set is only themselves are dropped.
func (s *Service) Clusters(ctx context.Context, candidateFiles []string) []Cluster {
	_, span := observability.Tracer.Start(ctx, "query.clusters",
		trace.WithAttributes(attribute.Int("candidate_count", len(candidateFiles))))
	defer span.End()

	candidates := make(map[string]bool, len(candidateFiles))
	for _, f := range candidateFiles {
		candidates[f] = true
	}

	visited := make(map[string]bool)
	var clusters []Cluster
	for _, file := range sortedKeys(candidates) {
		if visited[file] {
			continue
		}
		members := s.connectedWithin(file, candidates, visited)
		if len(members) < 2 {
			visited[file] = true
			continue
		}
		for _, m := range members {
			visited[m] = true
		}
		clusters = append(clusters, s.buildCluster(members, candidates))
	}
	return clusters
}

// connectedWithin returns the seed plus its one-hop neighbors restricted to
// unvisited candidates. Excluding visited files keeps clusters a partition:
// a file claimed by an earlier cluster is never pulled into a later one.
func (s *Service) connectedWithin(seed string, candidates, visited map[string]bool) []string {
	members := map[string]bool{seed: true}
	for _, p := range s.bundle.FileGraph.Predecessors(seed) {
		if candidates[p] && !visited[p] {
			members[p] = true
		}
	}
	for _, succ := range s.bundle.FileGraph.Successors(seed) {
		if candidates[succ] && !visited[succ] {
			members[succ] = true
		}
	}
	return sortedKeys(members)
}

func (s *Service) buildCluster(members []string, candidates map[string]bool) Cluster {
	memberSet := make(map[string]bool, len(members))
	for _, m := range members {
		memberSet[m] = true
	}

	relationships := make(map[string][]string, len(members))
	for _, m := range members {
		var internal []string
		for _, succ := range s.bundle.FileGraph.Successors(m) {
			if memberSet[succ] {
				internal = append(internal, succ)
			}
		}
		relationships[m] = internal
	}

	c := Cluster{
		Name:          clusterName(members),
		Files:         members,
		Relationships: relationships,
		EntryPoints:   s.entryPoints(members),
		Complexity:    len(members),
	}
	if s.detector != nil {
		seen := make(map[pattern.Pattern]bool)
		for _, m := range members {
			for _, p := range s.detector.Detect(m, s.bundle.Symbols(m)) {
				if !seen[p] {
					seen[p] = true
					c.Patterns = append(c.Patterns, p)
				}
			}
			if s.detector.IsConfigFile(m) {
				c.ConfigFiles = append(c.ConfigFiles, m)
			}
		}
		sort.Slice(c.Patterns, func(i, j int) bool { return c.Patterns[i] < c.Patterns[j] })
	}
	return c
}

func clusterName(members []string) string {
	stems := make([]string, 0, len(members))
	for _, m := range members {
		base := filepath.Base(m)
		stems = append(stems, strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base))))
	}
	for _, rule := range clusterNameRules {
		for _, stem := range stems {
			if strings.Contains(stem, rule.Token) {
				return rule.Name
			}
		}
	}
	return fmt.Sprintf("Cluster (%d files)", len(members))
}

// entryPoints surfaces methods whose names look like public registration or
// configuration hooks.
func (s *Service) entryPoints(members []string) []string {
	var out []string
	for _, m := range members {
		for _, method := range s.bundle.Methods(m) {
			name := strings.ToLower(method.FullName)
			for _, token := range entryPointTokens {
				if strings.Contains(name, token) {
					out = append(out, method.FullName)
					break
				}
			}
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
