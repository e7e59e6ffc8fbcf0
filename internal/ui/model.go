// Package ui renders a terminal monitor for a running session: state,
// negotiated formats, live input and output levels, and pipeline counters.
package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/antirec/internal/engine"
	"github.com/audiolibrelab/antirec/internal/events"
)

const (
	boxWidth = 54
	barWidth = 30
	// levelDecay is applied to the displayed level on every update so peaks
	// fall back smoothly
	levelDecay = 0.85
	// floorDB is the bottom of the level meters
	floorDB = -60.0
)

// RefreshInterval is how often the monitor polls the session state
var RefreshInterval = 250 * time.Millisecond

// StatusFunc returns the latest session snapshot, or nil when none exists
type StatusFunc func() *engine.SessionInfo

// LevelMsg carries the peak levels of one capture batch
type LevelMsg struct {
	Ori float32
	New float32
}

// StatusMsg refreshes the session snapshot
type StatusMsg struct {
	Info *engine.SessionInfo
}

// eventsClosedMsg reports that the update subscription ended
type eventsClosedMsg struct{}

type tickMsg time.Time

// Model represents the TUI state
type Model struct {
	status StatusFunc
	sub    *events.Subscription

	// Session
	info *engine.SessionInfo

	// Levels, linear in [0, 1]
	oriLevel float32
	newLevel float32
	updates  uint64

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	quitting bool
}

// NewModel creates a monitor polling status and reading levels from sub.
// Either may be nil.
func NewModel(status StatusFunc, sub *events.Subscription) Model {
	return Model{status: status, sub: sub}
}

// Init starts polling and listening
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitForUpdate(m.sub), m.pollStatus())
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case LevelMsg:
		m.applyLevels(msg)
		return m, waitForUpdate(m.sub)
	case eventsClosedMsg:
		m.sub = nil
	case StatusMsg:
		m.info = msg.Info
	case tickMsg:
		return m, tea.Batch(tick(), m.pollStatus())
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping session...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderDevices())
	b.WriteString(m.renderLevels())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

// State returns the displayed session state
func (m Model) State() engine.State {
	if m.info == nil {
		return engine.StateIdle
	}
	return m.info.State
}

func (m Model) renderHeader() string {
	state := "No session"
	since := ""
	if m.info != nil {
		state = string(m.info.State)
		if !m.info.StartedAt.IsZero() {
			end := time.Now()
			if m.info.EndedAt != nil {
				end = *m.info.EndedAt
			}
			since = formatElapsed(end.Sub(m.info.StartedAt))
		}
	}

	s := "┌─ antirec monitor " + strings.Repeat("─", boxWidth-18) + "┐\n"
	s += line(fmt.Sprintf("State:   %-12s %s", state, since))
	if m.info != nil && m.info.Error != "" {
		s += line("Error:   " + truncate(m.info.Error, boxWidth-10))
	}
	s += "├" + strings.Repeat("─", boxWidth) + "┤\n"
	return s
}

func (m Model) renderDevices() string {
	if m.info == nil || m.info.Negotiation == nil {
		return line("No devices negotiated")
	}

	n := m.info.Negotiation
	out := n.Output.Device.Name
	if n.Virtual {
		out += " (virtual)"
	}
	s := line("Input:   " + truncate(n.Input.Device.Name, boxWidth-10))
	s += line("         " + n.Input.Config.String())
	s += line("Output:  " + truncate(out, boxWidth-10))
	s += line("         " + n.Output.Config.String())
	return s
}

func (m Model) renderLevels() string {
	s := line("")
	s += line(fmt.Sprintf("Ori [%s] %s", renderBar(meterPosition(m.oriLevel), barWidth), formatDB(m.oriLevel)))
	s += line(fmt.Sprintf("New [%s] %s", renderBar(meterPosition(m.newLevel), barWidth), formatDB(m.newLevel)))
	return s
}

func (m Model) renderStats() string {
	s := "├" + strings.Repeat("─", boxWidth) + "┤\n"
	if m.info == nil {
		return s
	}

	s += line(fmt.Sprintf("Batches: %d  Silent: %d", m.info.CaptureBatches, m.info.PlaybackSilent))
	if r := m.info.Relay; r != nil {
		s += line(fmt.Sprintf("Relay:   %d/%d  Under: %d  Over: %d", r.Buffered, r.Capacity, r.Underruns, r.Overflows))
	}
	if rec := m.info.Recorder; rec != nil {
		s += line(fmt.Sprintf("Written: ori %d  new %d", rec.Original.Written, rec.Perturbed.Written))
		if dropped := rec.Original.Dropped + rec.Perturbed.Dropped; dropped > 0 {
			s += line(fmt.Sprintf("Dropped: %d samples", dropped))
		}
	}
	return s
}

func (m Model) renderDebug() string {
	s := line("DEBUG:")
	s += line(fmt.Sprintf("  Updates: %d", m.updates))
	if m.info != nil {
		s += line("  Session: " + m.info.ID)
		s += line("  " + truncate(m.info.OriginalFile, boxWidth-2))
		s += line("  " + truncate(m.info.PerturbedFile, boxWidth-2))
	}
	return s
}

func (m Model) renderHelp() string {
	return line("q:Stop and quit  d:Debug") + "└" + strings.Repeat("─", boxWidth) + "┘\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyLevels moves the meters toward the new peaks
func (m *Model) applyLevels(msg LevelMsg) {
	m.updates++
	m.oriLevel = max(msg.Ori, m.oriLevel*levelDecay)
	m.newLevel = max(msg.New, m.newLevel*levelDecay)
}

func (m Model) pollStatus() tea.Cmd {
	if m.status == nil {
		return nil
	}
	status := m.status
	return func() tea.Msg {
		return StatusMsg{Info: status()}
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForUpdate blocks until the next capture batch and reduces it to levels
func waitForUpdate(sub *events.Subscription) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := sub.Next()
		if !ok {
			return eventsClosedMsg{}
		}
		return LevelMsg{Ori: Peak(u.Ori), New: Peak(u.New)}
	}
}

// Peak returns the largest absolute sample, clipped to 1
func Peak(samples []float32) float32 {
	var p float32
	for _, v := range samples {
		if v < 0 {
			v = -v
		}
		if v > p {
			p = v
		}
	}
	return min(p, 1)
}

// meterPosition maps a linear level onto the meter scale in [0, 1]
func meterPosition(level float32) float64 {
	if level <= 0 {
		return 0
	}
	db := 20 * math.Log10(float64(level))
	if db <= floorDB {
		return 0
	}
	return math.Min(1, (db-floorDB)/-floorDB)
}

func formatDB(level float32) string {
	if level <= 0 {
		return "  -inf dB"
	}
	return fmt.Sprintf("%6.1f dB", 20*math.Log10(float64(level)))
}

func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// line pads content into one row of the box
func line(content string) string {
	pad := boxWidth - 2 - len([]rune(content))
	if pad < 0 {
		content = truncate(content, boxWidth-2)
		pad = 0
	}
	return "│ " + content + strings.Repeat(" ", pad) + " │\n"
}

func renderBar(fraction float64, width int) string {
	filled := int(math.Round(fraction * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
