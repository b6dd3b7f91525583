package main

import (
	"fmt"
	"strings"
	"time"

	"gapscan/internal/history"
	"gapscan/internal/query"
	"gapscan/internal/scan"
)

func formatImpactReport(report query.ImpactReport) string {
	var b strings.Builder

	b.WriteString("Impact Analysis\n")
	b.WriteString("===============\n")
	b.WriteString(fmt.Sprintf("Risk score: %d/10\n\n", report.RiskScore))

	b.WriteString(fmt.Sprintf("Direct impact (%d)\n", len(report.Direct)))
	for _, file := range report.Direct {
		b.WriteString(fmt.Sprintf("- %s\n", file))
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Indirect impact (%d)\n", len(report.Indirect)))
	for _, file := range report.Indirect {
		b.WriteString(fmt.Sprintf("- %s\n", file))
	}

	if len(report.Patterns) > 0 {
		b.WriteString("\nArchitectural patterns\n")
		for file, patterns := range report.Patterns {
			names := make([]string, 0, len(patterns))
			for _, p := range patterns {
				names = append(names, string(p))
			}
			b.WriteString(fmt.Sprintf("- %s: %s\n", file, strings.Join(names, ", ")))
		}
	}
	if len(report.BreakingChanges) > 0 {
		b.WriteString("\nPotential breaking changes\n")
		for _, note := range report.BreakingChanges {
			b.WriteString(fmt.Sprintf("- %s\n", note))
		}
	}
	if len(report.TestRequirements) > 0 {
		b.WriteString("\nSuggested tests\n")
		for _, note := range report.TestRequirements {
			b.WriteString(fmt.Sprintf("- %s\n", note))
		}
	}
	return b.String()
}

func formatClusters(clusters []query.Cluster) string {
	if len(clusters) == 0 {
		return "No clusters found.\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Clusters (%d)\n", len(clusters)))
	b.WriteString("============\n")
	for _, c := range clusters {
		b.WriteString(fmt.Sprintf("\n%s (%d files)\n", c.Name, len(c.Files)))
		for _, file := range c.Files {
			b.WriteString(fmt.Sprintf("- %s\n", file))
		}
		if len(c.EntryPoints) > 0 {
			b.WriteString(fmt.Sprintf("  entry points: %s\n", strings.Join(c.EntryPoints, ", ")))
		}
		if len(c.Patterns) > 0 {
			names := make([]string, 0, len(c.Patterns))
			for _, p := range c.Patterns {
				names = append(names, string(p))
			}
			b.WriteString(fmt.Sprintf("  patterns: %s\n", strings.Join(names, ", ")))
		}
	}
	return b.String()
}

func formatHistory(records []history.RunRecord) string {
	if len(records) == 0 {
		return "No recorded runs.\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Run History (%d)\n", len(records)))
	b.WriteString("===============\n")
	for _, r := range records {
		b.WriteString(fmt.Sprintf("%s  %-20s risk=%d/10  candidates=%d  clusters=%d  %s\n",
			r.Timestamp.Format("2006-01-02 15:04"), r.Ticket, r.RiskScore,
			r.Candidates, r.Clusters, r.Duration.Round(10*time.Millisecond)))
		if r.Failed > 0 || r.Skipped > 0 {
			b.WriteString(fmt.Sprintf("  stages: %d completed, %d failed, %d skipped\n",
				r.Completed, r.Failed, r.Skipped))
		}
	}
	return b.String()
}

func formatOutcome(outcome *scan.Outcome) string {
	var b strings.Builder

	b.WriteString("Scan Summary\n")
	b.WriteString("============\n")
	b.WriteString(fmt.Sprintf("Run: %s\n", outcome.RunID))
	b.WriteString(fmt.Sprintf("Intent: %s %s (%s)\n",
		outcome.Intent.Action, outcome.Intent.Category, outcome.Intent.OperationType))
	b.WriteString(fmt.Sprintf("Candidates: %d\n", len(outcome.Candidates)))
	for i, c := range outcome.Candidates {
		if i == 5 {
			b.WriteString(fmt.Sprintf("  ... and %d more\n", len(outcome.Candidates)-5))
			break
		}
		b.WriteString(fmt.Sprintf("  %-40s score=%.1f\n", c.FilePath, c.Score))
	}
	b.WriteString(fmt.Sprintf("Risk score: %d/10\n", outcome.Impact.RiskScore))
	b.WriteString(fmt.Sprintf("Clusters: %d\n", len(outcome.Clusters)))
	b.WriteString(fmt.Sprintf("Report: %s\n", outcome.ReportPath))
	return b.String()
}
