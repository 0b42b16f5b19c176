// Package monitor renders a live terminal dashboard of campaign progress.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/clustereval/internal/campaign"
	"github.com/fyrsmithlabs/clustereval/internal/navigator"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	batchRows       = 8
	fetchTimeout    = 5 * time.Second
)

// Model is the BubbleTea dashboard model.
type Model struct {
	source     Source
	interval   time.Duration
	lastUpdate time.Time
	report     campaign.Report
	loaded     bool
	err        error
	quitting   bool
	offset     int
	scrolled   bool

	// Evaluations per minute between consecutive reports, and the
	// evaluated count per report.
	rateHistory      []float64
	evaluatedHistory []float64

	overall progress.Model
	batch   progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling source every interval.
func NewModel(source Source, interval time.Duration) Model {
	return Model{
		source:           source,
		interval:         interval,
		rateHistory:      make([]float64, 0, historySize),
		evaluatedHistory: make([]float64, 0, historySize),
		overall: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(40),
		),
		batch: progress.New(
			progress.WithGradient("#ffff00", "#00ff00"),
			progress.WithWidth(20),
			progress.WithoutPercentage(),
		),
	}
}

// batchBadge marks a batch complete, started or untouched.
func batchBadge(p navigator.BatchProgress) string {
	switch {
	case p.Total > 0 && p.Done == p.Total:
		return healthyStyle.Render("✓")
	case p.Done > 0:
		return warningStyle.Render("●")
	}
	return dimStyle.Render("○")
}

// statusBadge summarizes the whole campaign.
func statusBadge(r campaign.Report) string {
	switch {
	case r.Total > 0 && r.Remaining == 0:
		return healthyStyle.Render("✓ COMPLETE")
	case r.Evaluated > 0:
		return warningStyle.Render("● IN PROGRESS")
	}
	return dimStyle.Render("○ NOT STARTED")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time

type reportMsg struct {
	report campaign.Report
	at     time.Time
}

type errMsg error

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchReport(m.source),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchReport(source Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		report, err := source.Progress(ctx)
		if err != nil {
			return errMsg(err)
		}
		return reportMsg{report: report, at: time.Now()}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchReport(m.source)
		case "down", "j":
			m.offset = m.clampOffset(m.offset + 1)
			m.scrolled = true
		case "up", "k":
			m.offset = m.clampOffset(m.offset - 1)
			m.scrolled = true
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchReport(m.source),
		)

	case reportMsg:
		if m.loaded && msg.at.After(m.lastUpdate) {
			minutes := msg.at.Sub(m.lastUpdate).Minutes()
			delta := float64(msg.report.Evaluated - m.report.Evaluated)
			// Imports and deletions can shrink the count.
			if delta < 0 {
				delta = 0
			}
			m.rateHistory = appendToHistory(m.rateHistory, delta/minutes)
		}
		m.evaluatedHistory = appendToHistory(m.evaluatedHistory, float64(msg.report.Evaluated))
		m.report = msg.report
		m.lastUpdate = msg.at
		m.loaded = true
		m.err = nil
		if m.scrolled {
			m.offset = m.clampOffset(m.offset)
		} else {
			m.offset = m.clampOffset(firstOpenBatch(m.report))
		}
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// firstOpenBatch is the first batch with clusters left, so the list opens
// where work continues.
func firstOpenBatch(r campaign.Report) int {
	for i, b := range r.Batches {
		if b.Done < b.Total {
			return i
		}
	}
	return 0
}

func (m Model) clampOffset(offset int) int {
	last := len(m.report.Batches) - batchRows
	if offset > last {
		offset = last
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

// rate returns the most recent evaluation rate.
func (m Model) rate() float64 {
	if len(m.rateHistory) == 0 {
		return 0
	}
	return m.rateHistory[len(m.rateHistory)-1]
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("clustereval Monitor")

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("⚠ Cannot read progress") + "\n\n")
	b.WriteString(dimStyle.Render("Source: ") + valueStyle.Render(m.source.Describe()) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry") + "\n")

	return containerStyle.Render(header + "\n" + b.String())
}

func (m Model) renderDashboard() string {
	var b strings.Builder
	r := m.report

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	b.WriteString(headerStyle.Render(" clustereval Monitor ") + "\n")
	b.WriteString(fmt.Sprintf("%s   %s   %s\n",
		statusBadge(r),
		dimStyle.Render(m.source.Describe()),
		dimStyle.Render(lastUpdateStr)))

	b.WriteString("\n" + sectionStyle.Render("┃ Campaign") + "\n")
	b.WriteString(labelStyle.Render("  Evaluated: ") +
		valueStyle.Render(FormatCount(r.Evaluated, r.Total)) +
		"   " + labelStyle.Render("Remaining: ") + valueStyle.Render(fmt.Sprintf("%d", r.Remaining)) + "\n")
	b.WriteString(labelStyle.Render("  Progress: ") +
		m.overall.ViewAs(r.Percent()) + "\n")
	b.WriteString(labelStyle.Render("  Batches: ") +
		valueStyle.Render(FormatCount(r.CompleteBatches(), len(r.Batches))) +
		dimStyle.Render(fmt.Sprintf(" complete, %d clusters each", r.BatchSize)) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Throughput") + "\n")
	b.WriteString(labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(m.rate())) +
		"   " + createSparkline(m.rateHistory) + "\n")
	b.WriteString(labelStyle.Render("  ETA: ") +
		valueStyle.Render(FormatETA(r.Remaining, m.rate())) +
		"   " + createSparkline(m.evaluatedHistory) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Batches") + "\n")
	if len(r.Batches) == 0 {
		b.WriteString(dimStyle.Render("  no batches") + "\n")
	}
	end := min(m.offset+batchRows, len(r.Batches))
	for _, p := range r.Batches[m.offset:end] {
		ratio := 0.0
		if p.Total > 0 {
			ratio = float64(p.Done) / float64(p.Total)
		}
		b.WriteString(fmt.Sprintf("  %s %-32s %s %s\n",
			batchBadge(p),
			p.Window.Label(),
			m.batch.ViewAs(ratio),
			dimStyle.Render(FormatCount(p.Done, p.Total))))
	}
	if len(r.Batches) > batchRows {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  showing %d-%d of %d", m.offset+1, end, len(r.Batches))) + "\n")
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerKeyStyle.Render("[↑/↓]") + footerStyle.Render(" scroll  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}

// Run starts the dashboard on the terminal until the user quits.
func Run(ctx context.Context, source Source, interval time.Duration) error {
	p := tea.NewProgram(NewModel(source, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
