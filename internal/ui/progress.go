package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gapscan/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	skippedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

// StageMsg carries one terminal stage result into the model.
type StageMsg pipeline.StageResult

// DoneMsg ends the program. Summary fields are rendered before quitting.
type DoneMsg struct {
	Err        error
	RunID      string
	Candidates int
	Clusters   int
	RiskScore  int
}

type stageRow struct {
	name   string
	status pipeline.StageStatus
	detail string
}

type Model struct {
	spinner    spinner.Model
	rows       []stageRow
	started    time.Time
	done       bool
	failed     bool
	summary    string
	lastUpdate time.Time
}

// NewModel pre-seeds the display with the stages the run will execute, in
// order, all pending.
func NewModel(stageNames []string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))

	rows := make([]stageRow, 0, len(stageNames))
	for _, name := range stageNames {
		rows = append(rows, stageRow{name: name, status: pipeline.StatusPending})
	}
	return Model{
		spinner:    sp,
		rows:       rows,
		started:    time.Now(),
		lastUpdate: time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case StageMsg:
		m.lastUpdate = time.Now()
		m.apply(pipeline.StageResult(msg))
		return m, nil

	case DoneMsg:
		m.done = true
		m.lastUpdate = time.Now()
		if msg.Err != nil {
			m.failed = true
			m.summary = failedStyle.Render(fmt.Sprintf("Scan failed: %v", msg.Err))
		} else {
			m.summary = completedStyle.Render(fmt.Sprintf(
				"Scan %s: %d candidates, %d clusters, risk %d/10",
				msg.RunID, msg.Candidates, msg.Clusters, msg.RiskScore))
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(result pipeline.StageResult) {
	for i := range m.rows {
		if m.rows[i].name == result.StageName {
			m.rows[i].status = result.Status
			m.rows[i].detail = rowDetail(result)
			return
		}
	}
	// Stages not pre-seeded (ad hoc batches) are appended.
	m.rows = append(m.rows, stageRow{
		name:   result.StageName,
		status: result.Status,
		detail: rowDetail(result),
	})
}

func rowDetail(result pipeline.StageResult) string {
	switch result.Status {
	case pipeline.StatusCompleted:
		if result.CacheHit {
			return "cached"
		}
		return result.Duration.Round(time.Millisecond).String()
	case pipeline.StatusFailed, pipeline.StatusSkipped:
		return result.Error
	}
	return ""
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle("Telemetry Gap Scanner"))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(fmt.Sprintf("Last update: %s | elapsed %s",
		m.lastUpdate.Format("15:04:05"),
		time.Since(m.started).Round(time.Second))))
	b.WriteString("\n\n")

	for _, row := range m.rows {
		b.WriteString(m.renderRow(row))
		b.WriteString("\n")
	}

	if m.summary != "" {
		b.WriteString("\n")
		b.WriteString(m.summary)
		b.WriteString("\n")
	}
	if !m.done {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("q to quit"))
	}
	return docStyle.Render(b.String())
}

func (m Model) renderRow(row stageRow) string {
	var marker, name string
	switch row.status {
	case pipeline.StatusCompleted:
		marker = completedStyle.Render("✓")
		name = row.name
	case pipeline.StatusFailed:
		marker = failedStyle.Render("✗")
		name = failedStyle.Render(row.name)
	case pipeline.StatusSkipped:
		marker = skippedStyle.Render("↷")
		name = skippedStyle.Render(row.name)
	default:
		if m.done {
			marker = pendingStyle.Render("·")
		} else {
			marker = m.spinner.View()
		}
		name = pendingStyle.Render(row.name)
	}

	line := fmt.Sprintf("%s %s", marker, name)
	if row.detail != "" {
		line += " " + statusStyle.Render(fmt.Sprintf("(%s)", row.detail))
	}
	return line
}
