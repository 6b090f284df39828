package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jacktune/jacktune/pkg/jacktune/advise"
	"github.com/jacktune/jacktune/pkg/jacktune/engine"
)

// windowOrder fixes the display order of the xrun windows.
var windowOrder = []string{"5s", "10s", "30s", "1m", "5m"}

// snapshotMsg carries a fresh status snapshot into the update loop.
type snapshotMsg *engine.Snapshot

// Model is the Bubble Tea model for the live monitor.
type Model struct {
	snapshots <-chan *engine.Snapshot
	cancel    context.CancelFunc

	spinner spinner.Model
	snap    *engine.Snapshot

	width  int
	height int
}

// NewModel creates a monitor model reading snapshots from the channel.
// cancel stops the sampling loop when the user quits.
func NewModel(snapshots <-chan *engine.Snapshot, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentColor)

	return Model{
		snapshots: snapshots,
		cancel:    cancel,
		spinner:   s,
		width:     80,
		height:    24,
	}
}

// Init starts the spinner and the snapshot listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForSnapshot())
}

// waitForSnapshot blocks on the next snapshot from the sampling loop.
func (m Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.snapshots
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case snapshotMsg:
		m.snap = msg
		return m, m.waitForSnapshot()

	case spinner.TickMsg:
		if m.snap == nil {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.snap == nil {
		return outerBoxStyle.Render(fmt.Sprintf("%s sampling xrun sources...",
			m.spinner.View()))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("jacktune monitor"))
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(strings.Repeat("─", 44)))
	b.WriteString("\n")

	b.WriteString(m.renderRow("Device", m.renderPresence()))
	b.WriteString(m.renderRow("State", valueStyle.Render(string(m.snap.State))))
	b.WriteString(m.renderRow("JACK", m.renderEngine()))
	b.WriteString(m.renderRow("Xruns", m.renderWindows()))
	b.WriteString(m.renderRow("Severity", severityStyle(m.snap.Severity).Render(m.snap.Severity)))

	if len(m.snap.Recommendations) > 0 {
		b.WriteString("\n")
		b.WriteString(accentTextStyle.Render("Recommendations"))
		b.WriteString("\n")
		for _, rec := range m.snap.Recommendations {
			b.WriteString(valueStyle.Render("  • " + rec))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(mutedTextStyle.Render(fmt.Sprintf("updated %s  ·  q to quit",
		humanize.Time(m.snap.UpdatedAt))))

	return outerBoxStyle.Width(min(m.width-2, 60)).Render(b.String())
}

func (m Model) renderRow(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

func (m Model) renderPresence() string {
	if m.snap.DevicePresent {
		return successTextStyle.Render("present")
	}
	return mutedTextStyle.Render("absent")
}

func (m Model) renderEngine() string {
	if !m.snap.JackActive {
		return mutedTextStyle.Render("not running")
	}
	if m.snap.BufferFrames == 0 || m.snap.SampleRateHz == 0 {
		return valueStyle.Render("running")
	}
	line := fmt.Sprintf("%d @ %d Hz (%.1f ms)",
		m.snap.BufferFrames, m.snap.SampleRateHz,
		advise.Latency(m.snap.BufferFrames, m.snap.SampleRateHz))
	if m.snap.Periods > 0 {
		line += fmt.Sprintf(", %dp", m.snap.Periods)
	}
	return valueStyle.Render(line)
}

func (m Model) renderWindows() string {
	if len(m.snap.XrunWindowCounts) == 0 {
		return mutedTextStyle.Render("no data")
	}
	parts := make([]string, 0, len(windowOrder))
	for _, label := range windowOrder {
		count, ok := m.snap.XrunWindowCounts[label]
		if !ok {
			continue
		}
		cell := fmt.Sprintf("%s:%d", label, count)
		if count > 0 {
			parts = append(parts, warningTextStyle.Render(cell))
		} else {
			parts = append(parts, valueStyle.Render(cell))
		}
	}
	return strings.Join(parts, "  ")
}
