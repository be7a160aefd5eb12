// ABOUTME: Bubbletea model for the threshold test screen
// ABOUTME: Tracks session progress and forwards listener responses
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/puretone/internal/cli"
	"github.com/harperreed/puretone/pkg/audiometry"
)

// Screen states
const (
	stateWaiting   = "waiting"
	stateTone      = "tone"
	stateListening = "listening"
	stateComplete  = "complete"
	stateAborted   = "aborted"
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

// TestModel represents the test screen state
type TestModel struct {
	input    Responder
	controls *Controls

	// Session
	sessionID   string
	frequencies []float64
	state       string
	ear         audiometry.Ear
	frequencyHz float64
	levelHL     int
	stimulus    float64
	trial       int
	completed   int

	// Responses
	lastResponse string
	notice       string

	// Thresholds found so far
	left  audiometry.Thresholds
	right audiometry.Thresholds

	result *audiometry.Result
	err    error

	// Remote responders
	remoteClients int
	remoteAddr    string

	// Debug shows levels, which a listener should not see
	showDebug bool

	// Dimensions
	width  int
	height int
}

// NewTestModel creates a test screen forwarding answers to input
func NewTestModel(input Responder, frequencies []float64, ctrl *Controls) TestModel {
	return TestModel{
		input:       input,
		controls:    ctrl,
		frequencies: frequencies,
		state:       stateWaiting,
		left:        make(audiometry.Thresholds),
		right:       make(audiometry.Thresholds),
	}
}

// Init initializes the model
func (m TestModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m TestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case EventMsg:
		m.applyEvent(msg.Event)
	case RemoteMsg:
		m.remoteClients = msg.Clients
		if msg.Address != "" {
			m.remoteAddr = msg.Address
		}
	}

	return m, nil
}

// View renders the TUI
func (m TestModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(cli.TitleStyle.Render("PureTone hearing test"))
	sb.WriteString("\n")

	switch m.state {
	case stateComplete:
		sb.WriteString(m.renderResult())
	case stateAborted:
		sb.WriteString(boxStyle.Render(fmt.Sprintf("Test stopped: %v", m.err)))
		sb.WriteString("\n")
	default:
		sb.WriteString(boxStyle.Render(m.renderProgress()))
		sb.WriteString("\n")
	}

	if m.showDebug {
		sb.WriteString(m.renderDebug())
	}

	sb.WriteString(m.renderHelp())
	return sb.String()
}

// renderProgress shows the current ear, frequency and prompt
func (m TestModel) renderProgress() string {
	total := 2 * len(m.frequencies)
	lines := []string{
		fmt.Sprintf("Ear:       %s", strings.ToUpper(m.ear.String())),
		fmt.Sprintf("Frequency: %s", cli.FormatFrequency(m.frequencyHz)),
		fmt.Sprintf("Progress:  [%s] %d/%d", renderBar(m.completed, total, 20), m.completed, total),
		"",
	}

	switch m.state {
	case stateTone:
		lines = append(lines, "Listen...")
	case stateListening:
		lines = append(lines, promptStyle.Render("Did you hear the tone? space = yes, n = no"))
	default:
		lines = append(lines, "Get ready")
	}

	if m.notice != "" {
		lines = append(lines, helpStyle.Render(m.notice))
	}
	if m.remoteClients > 0 {
		lines = append(lines, helpStyle.Render(fmt.Sprintf("Remote responders: %d", m.remoteClients)))
	} else if m.remoteAddr != "" {
		lines = append(lines, helpStyle.Render("Remote: "+m.remoteAddr))
	}

	return strings.Join(lines, "\n")
}

// renderResult shows the final thresholds
func (m TestModel) renderResult() string {
	if m.result == nil {
		return ""
	}
	return boxStyle.Render(strings.TrimRight(cli.ResultsTable(*m.result).String(), "\n")) + "\n"
}

// renderDebug shows levels and the thresholds so far
func (m TestModel) renderDebug() string {
	return fmt.Sprintf("DEBUG: session %s trial %d level %d dB HL stimulus %.1f dBFS last %s\n       left %v right %v\n",
		truncate(m.sessionID, 8), m.trial, m.levelHL, m.stimulus, m.lastResponse, m.left, m.right)
}

// renderHelp renders keyboard shortcuts
func (m TestModel) renderHelp() string {
	if m.state == stateComplete || m.state == stateAborted {
		return helpStyle.Render("q:Quit") + "\n"
	}
	return helpStyle.Render("space:Heard  n:Not heard  d:Debug  q:Quit") + "\n"
}

// handleKey handles keyboard input
func (m TestModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.requestQuit()
		return m, tea.Quit
	case " ", "enter", "y":
		m.respond(true)
	case "n":
		m.respond(false)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m *TestModel) respond(heard bool) {
	if m.input == nil || m.state == stateComplete || m.state == stateAborted {
		return
	}

	var accepted bool
	if heard {
		accepted = m.input.Heard()
	} else {
		accepted = m.input.DidNotHear()
	}

	if accepted {
		m.notice = ""
	} else {
		m.notice = "Wait for the tone to finish before answering"
	}
}

// applyEvent updates model from a session event
func (m *TestModel) applyEvent(ev audiometry.Event) {
	if ev.SessionID != "" {
		m.sessionID = ev.SessionID
	}

	switch ev.Type {
	case audiometry.EarStarted:
		m.ear = ev.Ear
		m.state = stateWaiting
	case audiometry.FrequencyStarted:
		m.ear = ev.Ear
		m.frequencyHz = ev.FrequencyHz
		m.levelHL = ev.LevelHL
		m.state = stateWaiting
	case audiometry.TrialPresented:
		m.state = stateTone
		m.trial = ev.Trial
		m.levelHL = ev.LevelHL
		m.stimulus = ev.StimulusDbfs
		m.notice = ""
	case audiometry.AwaitingResponse:
		m.state = stateListening
	case audiometry.ResponseResolved:
		m.state = stateWaiting
		m.lastResponse = ev.Response.String()
	case audiometry.FrequencyTerminated:
		if ev.Ear == audiometry.Left {
			m.left[ev.FrequencyHz] = ev.ThresholdHL
		} else {
			m.right[ev.FrequencyHz] = ev.ThresholdHL
		}
		m.completed++
	case audiometry.SessionCompleted:
		m.state = stateComplete
		m.result = ev.Result
	case audiometry.SessionAborted:
		m.state = stateAborted
		m.err = ev.Err
	}
}

// Utility functions
func renderBar(value, max, width int) string {
	if max <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / max
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
