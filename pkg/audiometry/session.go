// ABOUTME: Test session sequencing both ears across the frequency list
// ABOUTME: Routes listener responses to the active window and assembles results
package audiometry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/puretone/pkg/audio"
	"github.com/harperreed/puretone/pkg/calibration"
	"github.com/harperreed/puretone/pkg/tone"
)

// Session runs the full left-then-right threshold test. A session can be run
// once at a time; its result is handed out on completion and not retained.
type Session struct {
	id          string
	cfg         Config
	gen         Generator
	calibration calibration.Map
	window      *responseWindow
	controller  *Controller

	mu      sync.Mutex
	running bool
}

// NewSession validates cfg and prepares a session driving gen
func NewSession(gen Generator, cal calibration.Map, cfg Config) (*Session, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	s := &Session{
		id:          uuid.New().String(),
		cfg:         cfg,
		gen:         gen,
		calibration: cal,
		window:      newResponseWindow(),
	}
	s.controller = newController(gen, cfg, s.window, s.emit)
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Config returns the effective configuration
func (s *Session) Config() Config {
	return s.cfg
}

// Heard signals a positive response. Ignored unless a window is open.
func (s *Session) Heard() bool {
	return s.window.signal(Heard)
}

// DidNotHear signals a negative response. Ignored unless a window is open.
func (s *Session) DidNotHear() bool {
	return s.window.signal(Missed)
}

// AwaitingResponse reports whether a response window is open
func (s *Session) AwaitingResponse() bool {
	return s.window.isArmed()
}

// Running reports whether Run is in progress
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run tests every frequency for the left ear, then the right ear. Cancelling
// ctx silences the generator and returns ctx.Err() with no result.
func (s *Session) Run(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Result{}, ErrSessionRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.checkCalibration(); err != nil {
		s.emit(Event{Type: SessionAborted, Err: err})
		return Result{}, err
	}

	result := Result{
		SessionID:   s.id,
		Policy:      s.cfg.Policy.Name(),
		Frequencies: s.cfg.Frequencies,
		Left:        make(Thresholds, len(s.cfg.Frequencies)),
		Right:       make(Thresholds, len(s.cfg.Frequencies)),
		StartedAt:   time.Now(),
	}

	log.Printf("Session %s starting: %d frequencies, policy %s", s.id, len(s.cfg.Frequencies), result.Policy)

	for _, ear := range Ears {
		s.emit(Event{Type: EarStarted, Ear: ear})
		thresholds := result.Ear(ear)

		for _, freq := range s.cfg.Frequencies {
			ref, _ := s.calibration.Reference(freq)
			threshold, err := s.controller.Run(ctx, ear, freq, ref)
			if err != nil {
				s.restore()
				log.Printf("Session %s aborted: %v", s.id, err)
				s.emit(Event{Type: SessionAborted, Ear: ear, FrequencyHz: freq, Err: err})
				return Result{}, err
			}
			thresholds[freq] = threshold
		}

		s.emit(Event{Type: EarCompleted, Ear: ear})
		log.Printf("Session %s: %s ear complete", s.id, ear)
	}

	s.restore()
	result.CompletedAt = time.Now()

	out := result.clone()
	s.emit(Event{Type: SessionCompleted, Result: &out})
	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(result.clone())
	}

	log.Printf("Session %s complete in %v", s.id, result.CompletedAt.Sub(result.StartedAt).Round(time.Second))
	return result, nil
}

func (s *Session) checkCalibration() error {
	if s.calibration.Empty() {
		return ErrNotCalibrated
	}
	for _, f := range s.cfg.Frequencies {
		if _, ok := s.calibration.Reference(f); !ok {
			return fmt.Errorf("%w: %g Hz", ErrMissingCalibration, f)
		}
	}
	return nil
}

// restore silences the generator and returns it to center pan
func (s *Session) restore() {
	s.gen.Stop()
	freq := tone.DefaultFrequencyHz
	if len(s.cfg.Frequencies) > 0 {
		freq = s.cfg.Frequencies[len(s.cfg.Frequencies)-1]
	}
	s.gen.SetParameters(freq, audio.SilenceDbfs, tone.PanCenter)
}

func (s *Session) emit(ev Event) {
	if s.cfg.OnEvent == nil {
		return
	}
	ev.SessionID = s.id
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.cfg.OnEvent(ev)
}
