// ABOUTME: Session event definitions
// ABOUTME: State changes reported to the UI and remote observers
package audiometry

import (
	"fmt"
	"time"
)

// EventType identifies a session state change
type EventType int

const (
	EarStarted EventType = iota
	FrequencyStarted
	TrialPresented
	AwaitingResponse
	ResponseResolved
	FrequencyTerminated
	EarCompleted
	SessionCompleted
	SessionAborted
)

func (t EventType) String() string {
	switch t {
	case EarStarted:
		return "ear_started"
	case FrequencyStarted:
		return "frequency_started"
	case TrialPresented:
		return "trial_presented"
	case AwaitingResponse:
		return "awaiting_response"
	case ResponseResolved:
		return "response_resolved"
	case FrequencyTerminated:
		return "frequency_terminated"
	case EarCompleted:
		return "ear_completed"
	case SessionCompleted:
		return "session_completed"
	case SessionAborted:
		return "session_aborted"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Termination explains why a frequency's run ended
type Termination string

const (
	TerminationThreshold      Termination = "threshold"
	TerminationNotCalibrated  Termination = "calibration_no_response"
	TerminationOutputCeiling  Termination = "output_ceiling"
	TerminationLevelExhausted Termination = "level_exhausted"
)

// Event describes one session state change. Only the fields relevant to
// Type are set.
type Event struct {
	Type         EventType
	SessionID    string
	Time         time.Time
	Ear          Ear
	FrequencyHz  float64
	Trial        int
	LevelHL      int
	StimulusDbfs float64
	Response     Response
	ThresholdHL  int
	Termination  Termination
	Err          error
	Result       *Result
}
