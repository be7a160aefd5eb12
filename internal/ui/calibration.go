// ABOUTME: Bubbletea model for the calibration screen
// ABOUTME: Arrow keys move the level, enter confirms, x records no response
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/puretone/internal/cli"
	"github.com/harperreed/puretone/pkg/calibration"
)

// Level steps for the calibration keys
const (
	FineStepDB   = 1.0
	CoarseStepDB = 5.0
)

// CalibrationModel represents the calibration screen state
type CalibrationModel struct {
	input    LevelAdjuster
	controls *Controls

	progress calibration.Progress
	total    int
	done     bool
	result   calibration.Map
	err      error

	width  int
	height int
}

// NewCalibrationModel creates a calibration screen for total frequencies
func NewCalibrationModel(input LevelAdjuster, total int, ctrl *Controls) CalibrationModel {
	return CalibrationModel{
		input:    input,
		controls: ctrl,
		total:    total,
		progress: calibration.Progress{Total: total, LevelDbfs: calibration.StartDbfs},
	}
}

// Init initializes the model
func (m CalibrationModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m CalibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case ProgressMsg:
		m.progress = msg.Progress
		if msg.Progress.Total > 0 {
			m.total = msg.Progress.Total
		}
	case CalibrationDoneMsg:
		m.done = true
		m.result = msg.Map
		m.err = msg.Err
	}

	return m, nil
}

// View renders the TUI
func (m CalibrationModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(cli.TitleStyle.Render("PureTone calibration"))
	sb.WriteString("\n")

	if m.done {
		if m.err != nil {
			sb.WriteString(boxStyle.Render(fmt.Sprintf("Calibration stopped: %v", m.err)))
		} else {
			sb.WriteString(boxStyle.Render(strings.TrimRight(cli.CalibrationTable(m.result).String(), "\n")))
		}
		sb.WriteString("\n")
		sb.WriteString(helpStyle.Render("q:Quit"))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(boxStyle.Render(m.renderLevel()))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("↑/↓:1 dB  pgup/pgdn:5 dB  enter:Barely audible  x:Cannot hear  q:Quit"))
	sb.WriteString("\n")
	return sb.String()
}

// renderLevel shows the frequency and a level slider
func (m CalibrationModel) renderLevel() string {
	span := calibration.MaxDbfs - calibration.MinDbfs
	pos := int(m.progress.LevelDbfs - calibration.MinDbfs)
	lines := []string{
		fmt.Sprintf("Frequency %d of %d: %s", m.progress.Index+1, m.total, cli.FormatFrequency(m.progress.FrequencyHz)),
		fmt.Sprintf("Level: [%s] %.0f dBFS", renderBar(pos, int(span), 30), m.progress.LevelDbfs),
		"",
		promptStyle.Render("Lower the tone until you can barely hear it"),
	}
	return strings.Join(lines, "\n")
}

// handleKey handles keyboard input
func (m CalibrationModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.requestQuit()
		return m, tea.Quit
	}

	if m.done || m.input == nil {
		return m, nil
	}

	switch msg.String() {
	case "up", "right", "+":
		m.input.Adjust(FineStepDB)
	case "down", "left", "-":
		m.input.Adjust(-FineStepDB)
	case "pgup":
		m.input.Adjust(CoarseStepDB)
	case "pgdown":
		m.input.Adjust(-CoarseStepDB)
	case "enter", " ":
		m.input.Confirm()
	case "x":
		m.input.NoResponse()
	}

	return m, nil
}
