// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea programs for the test and calibration screens
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Responder receives the listener's answers
type Responder interface {
	Heard() bool
	DidNotHear() bool
}

// LevelAdjuster receives calibration input
type LevelAdjuster interface {
	Adjust(deltaDB float64)
	Confirm()
	NoResponse()
}

// Controls holds channels for communication out of the TUI
type Controls struct {
	Quit chan QuitMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Quit: make(chan QuitMsg, 1),
	}
}

func (c *Controls) requestQuit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- QuitMsg{}:
	default:
	}
}

// RunTest creates the threshold test program
func RunTest(responder Responder, frequencies []float64, ctrl *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewTestModel(responder, frequencies, ctrl), tea.WithAltScreen())
	return p, nil
}

// RunCalibration creates the calibration program
func RunCalibration(adj LevelAdjuster, total int, ctrl *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewCalibrationModel(adj, total, ctrl), tea.WithAltScreen())
	return p, nil
}
