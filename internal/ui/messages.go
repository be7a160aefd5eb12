// ABOUTME: Messages delivered to the TUI programs
// ABOUTME: Session events, calibration progress and remote status
package ui

import (
	"github.com/harperreed/puretone/pkg/audiometry"
	"github.com/harperreed/puretone/pkg/calibration"
)

// EventMsg carries a session state change
type EventMsg struct {
	Event audiometry.Event
}

// ProgressMsg carries the calibrator position
type ProgressMsg struct {
	Progress calibration.Progress
}

// CalibrationDoneMsg reports the end of calibration
type CalibrationDoneMsg struct {
	Map calibration.Map
	Err error
}

// RemoteMsg reports connected remote responders
type RemoteMsg struct {
	Clients int
	Address string
}

// QuitMsg asks the caller to shut down
type QuitMsg struct{}
