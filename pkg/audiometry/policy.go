// ABOUTME: Staircase level-adjustment policies
// ABOUTME: Single-response (canonical) and Hughson-Westlake confirmation rules
package audiometry

import (
	"fmt"
	"strings"
)

// Response is how a response window was resolved
type Response int

const (
	// Heard is an explicit positive signal from the listener
	Heard Response = iota
	// Missed is an explicit negative signal from the listener
	Missed
	// TimedOut means the window elapsed without a signal
	TimedOut
)

func (r Response) String() string {
	switch r {
	case Heard:
		return "heard"
	case Missed:
		return "missed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("response(%d)", int(r))
	}
}

// Negative reports whether the response counts as "not heard"
func (r Response) Negative() bool {
	return r == Missed || r == TimedOut
}

// TrialState is the per-ear, per-frequency staircase state. It lives for one
// frequency's run.
type TrialState struct {
	Ear         Ear
	FrequencyHz float64
	LevelHL     int

	// AttemptsAtLevel counts presentations at the current level
	AttemptsAtLevel int
	Trials          int
	Terminated      bool

	ascending    bool
	heardAtLevel map[int]int
}

func newTrialState(ear Ear, frequencyHz float64, startLevelHL int) *TrialState {
	return &TrialState{
		Ear:          ear,
		FrequencyHz:  frequencyHz,
		LevelHL:      startLevelHL,
		heardAtLevel: make(map[int]int),
	}
}

func (st *TrialState) setLevel(level int) {
	if level != st.LevelHL {
		st.AttemptsAtLevel = 0
	}
	st.LevelHL = level
}

// Policy folds a resolved response into the trial state
type Policy interface {
	// Name identifies the policy in config and results
	Name() string

	// Apply updates st for response r. It returns done=true with the
	// threshold when the search for this frequency is finished.
	Apply(st *TrialState, r Response) (thresholdHL int, done bool)
}

// Policy names
const (
	PolicySingle          = "single"
	PolicyHughsonWestlake = "hughson-westlake"
)

// SingleResponse accepts the first heard response as the threshold and
// raises the level by StepUpDB after every miss or timeout.
type SingleResponse struct {
	StepUpDB int
}

// Name implements Policy
func (SingleResponse) Name() string { return PolicySingle }

func (p SingleResponse) validate() error {
	if p.StepUpDB <= 0 {
		return fmt.Errorf("step up must be positive, got %d dB", p.StepUpDB)
	}
	return nil
}

// Apply implements Policy
func (p SingleResponse) Apply(st *TrialState, r Response) (int, bool) {
	if r == Heard {
		return st.LevelHL, true
	}
	st.setLevel(st.LevelHL + p.StepUpDB)
	return 0, false
}

// HughsonWestlake drops StepDownDB after a heard response and rises StepUpDB
// after a miss. A level becomes the threshold once it has been heard
// Confirmations times on ascending runs. Responses at MinLevelHL count
// regardless of direction.
type HughsonWestlake struct {
	StepUpDB      int
	StepDownDB    int
	Confirmations int
	MinLevelHL    int
}

// Name implements Policy
func (HughsonWestlake) Name() string { return PolicyHughsonWestlake }

func (p HughsonWestlake) validate() error {
	if p.StepUpDB <= 0 || p.StepDownDB <= 0 {
		return fmt.Errorf("steps must be positive, got up %d dB and down %d dB", p.StepUpDB, p.StepDownDB)
	}
	if p.Confirmations < 1 {
		return fmt.Errorf("confirmations must be at least 1, got %d", p.Confirmations)
	}
	return nil
}

// Apply implements Policy
func (p HughsonWestlake) Apply(st *TrialState, r Response) (int, bool) {
	if r.Negative() {
		st.ascending = true
		st.setLevel(st.LevelHL + p.StepUpDB)
		return 0, false
	}

	if st.ascending || st.LevelHL <= p.MinLevelHL {
		st.heardAtLevel[st.LevelHL]++
		if st.heardAtLevel[st.LevelHL] >= p.Confirmations {
			return st.LevelHL, true
		}
	}

	st.ascending = false
	next := st.LevelHL - p.StepDownDB
	if next < p.MinLevelHL {
		next = p.MinLevelHL
	}
	st.setLevel(next)
	return 0, false
}

// PolicyByName builds a policy from config values
func PolicyByName(name string, cfg Config) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicySingle:
		return SingleResponse{StepUpDB: cfg.StepUpDB}, nil
	case PolicyHughsonWestlake:
		confirmations := cfg.Confirmations
		if confirmations < 1 {
			confirmations = DefaultConfirmations
		}
		return HughsonWestlake{
			StepUpDB:      cfg.StepUpDB,
			StepDownDB:    cfg.StepDownDB,
			Confirmations: confirmations,
			MinLevelHL:    cfg.MinLevelHL,
		}, nil
	default:
		return nil, fmt.Errorf("unknown staircase policy: %q", name)
	}
}
