// ABOUTME: Core audiometry types
// ABOUTME: Ears, configuration defaults and per-ear threshold results
package audiometry

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/harperreed/puretone/pkg/calibration"
	"github.com/harperreed/puretone/pkg/tone"
)

// NoResponse is the threshold recorded when no response was obtained
const NoResponse = -1

// Configuration defaults
const (
	DefaultStartLevelHL   = 20
	DefaultStepUpDB       = 5
	DefaultStepDownDB     = 10
	DefaultMaxLevelHL     = 100
	DefaultMinLevelHL     = -10
	DefaultConfirmations  = 2
	DefaultToneDuration   = 1 * time.Second
	DefaultResponseWindow = 2 * time.Second
)

var (
	// ErrNotCalibrated is returned when a session starts without calibration data
	ErrNotCalibrated = errors.New("not calibrated")

	// ErrMissingCalibration is returned when a test frequency has no calibration entry
	ErrMissingCalibration = errors.New("missing calibration for frequency")

	// ErrSessionRunning is returned when Run is called on a session already in progress
	ErrSessionRunning = errors.New("session already running")
)

// Ear identifies which ear is being tested
type Ear int

const (
	Left Ear = iota
	Right
)

// Ears is the fixed test order
var Ears = []Ear{Left, Right}

func (e Ear) String() string {
	switch e {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("ear(%d)", int(e))
	}
}

// Pan returns the stereo placement that routes a tone to this ear only
func (e Ear) Pan() float64 {
	if e == Left {
		return tone.PanLeft
	}
	return tone.PanRight
}

// Generator is the tone source the staircase drives
type Generator interface {
	SetParameters(frequencyHz, gainDbfs, pan float64)
	Start()
	Stop()
}

// Config holds test procedure settings. Start from DefaultConfig when
// overriding individual fields; a zero Config also gets the default levels.
type Config struct {
	// Frequencies is the ordered list tested for each ear
	Frequencies []float64

	// Levels in dB HL. When all three are zero the defaults apply, so a
	// start level of 0 dB HL needs an explicit MaxLevelHL.
	StartLevelHL int
	MaxLevelHL   int
	MinLevelHL   int

	// Step sizes in dB
	StepUpDB   int
	StepDownDB int

	// Confirmations is the heard count required by the Hughson-Westlake policy
	Confirmations int

	// Timing
	ToneDuration    time.Duration
	ResponseWindow  time.Duration
	InterTrialDelay time.Duration

	// Policy decides level changes and termination. Nil means SingleResponse.
	Policy Policy

	// OnEvent is called from the session goroutine for every state change
	OnEvent func(Event)

	// OnComplete receives the result once both ears have finished
	OnComplete func(Result)
}

// DefaultConfig returns the canonical procedure settings
func DefaultConfig() Config {
	return Config{
		Frequencies:    calibration.StandardFrequencies(),
		StartLevelHL:   DefaultStartLevelHL,
		MaxLevelHL:     DefaultMaxLevelHL,
		MinLevelHL:     DefaultMinLevelHL,
		StepUpDB:       DefaultStepUpDB,
		StepDownDB:     DefaultStepDownDB,
		Confirmations:  DefaultConfirmations,
		ToneDuration:   DefaultToneDuration,
		ResponseWindow: DefaultResponseWindow,
	}
}

// withDefaults fills fields whose zero value is never meaningful
func (c Config) withDefaults() Config {
	if len(c.Frequencies) == 0 {
		c.Frequencies = calibration.StandardFrequencies()
	}
	if c.StartLevelHL == 0 && c.MaxLevelHL == 0 && c.MinLevelHL == 0 {
		c.StartLevelHL = DefaultStartLevelHL
		c.MinLevelHL = DefaultMinLevelHL
	}
	if c.MaxLevelHL == 0 {
		c.MaxLevelHL = DefaultMaxLevelHL
	}
	if c.StepUpDB == 0 {
		c.StepUpDB = DefaultStepUpDB
	}
	if c.StepDownDB == 0 {
		c.StepDownDB = DefaultStepDownDB
	}
	if c.Confirmations == 0 {
		c.Confirmations = DefaultConfirmations
	}
	if c.ToneDuration == 0 {
		c.ToneDuration = DefaultToneDuration
	}
	if c.ResponseWindow == 0 {
		c.ResponseWindow = DefaultResponseWindow
	}
	if c.Policy == nil {
		c.Policy = SingleResponse{StepUpDB: c.StepUpDB}
	}
	c.Frequencies = slices.Clone(c.Frequencies)
	return c
}

func (c Config) validate() error {
	for _, f := range c.Frequencies {
		if f < tone.MinFrequencyHz || f > tone.MaxFrequencyHz {
			return fmt.Errorf("frequency %g Hz outside generator range %g-%g Hz", f, tone.MinFrequencyHz, tone.MaxFrequencyHz)
		}
	}
	seen := make(map[float64]bool, len(c.Frequencies))
	for _, f := range c.Frequencies {
		if seen[f] {
			return fmt.Errorf("duplicate test frequency %g Hz", f)
		}
		seen[f] = true
	}
	if c.StepUpDB < 0 || c.StepDownDB < 0 {
		return fmt.Errorf("step sizes must be positive")
	}
	if v, ok := c.Policy.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return fmt.Errorf("%s policy: %w", c.Policy.Name(), err)
		}
	}
	if c.MaxLevelHL < c.StartLevelHL {
		return fmt.Errorf("max level %d dB HL below start level %d dB HL", c.MaxLevelHL, c.StartLevelHL)
	}
	if c.MinLevelHL > c.StartLevelHL {
		return fmt.Errorf("min level %d dB HL above start level %d dB HL", c.MinLevelHL, c.StartLevelHL)
	}
	if c.ToneDuration < 0 || c.ResponseWindow < 0 || c.InterTrialDelay < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// Thresholds maps frequency in Hz to threshold in dB HL, or NoResponse
type Thresholds map[float64]int

// Clone returns an independent copy
func (t Thresholds) Clone() Thresholds {
	out := make(Thresholds, len(t))
	for f, v := range t {
		out[f] = v
	}
	return out
}

// Result is the outcome of a complete session
type Result struct {
	SessionID   string
	Policy      string
	Frequencies []float64
	Left        Thresholds
	Right       Thresholds
	StartedAt   time.Time
	CompletedAt time.Time
}

// Ear returns the thresholds for one ear
func (r Result) Ear(e Ear) Thresholds {
	if e == Left {
		return r.Left
	}
	return r.Right
}

func (r Result) clone() Result {
	r.Frequencies = slices.Clone(r.Frequencies)
	r.Left = r.Left.Clone()
	r.Right = r.Right.Clone()
	return r
}
