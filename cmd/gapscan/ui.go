package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"gapscan/internal/pipeline"
	"gapscan/internal/scan"
	"gapscan/internal/ui"
)

var scanStages = []string{
	"ticket_processing",
	"intent_extraction",
	"graph_build",
	"candidate_search",
	"impact_analysis",
	"clustering",
	"report_generation",
}

// runScanWithUI drives the runner on a background goroutine and streams
// stage results into the progress model.
func runScanWithUI(ctx context.Context, runner *scan.Runner, ticketPath string) error {
	program := tea.NewProgram(ui.NewModel(scanStages))

	runner.OnStage = func(result pipeline.StageResult) {
		program.Send(ui.StageMsg(result))
	}

	type scanDone struct {
		outcome *scan.Outcome
		err     error
	}
	done := make(chan scanDone, 1)
	go func() {
		outcome, err := runner.Run(ctx, ticketPath)
		msg := ui.DoneMsg{Err: err}
		if outcome != nil {
			msg.RunID = outcome.RunID
			msg.Candidates = len(outcome.Candidates)
			msg.Clusters = len(outcome.Clusters)
			msg.RiskScore = outcome.Impact.RiskScore
		}
		program.Send(msg)
		done <- scanDone{outcome: outcome, err: err}
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("progress ui: %w", err)
	}

	result := <-done
	if result.err != nil {
		return result.err
	}
	fmt.Print(formatOutcome(result.outcome))
	return nil
}
