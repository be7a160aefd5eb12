// ABOUTME: Test helpers for the audiometry package
// ABOUTME: Recording generator fake and scripted listener responses
package audiometry

import (
	"sync"
	"testing"
	"time"

	"github.com/harperreed/puretone/pkg/calibration"
)

type presentation struct {
	frequencyHz float64
	gainDbfs    float64
	pan         float64
}

// recordingGenerator captures every tone that was started
type recordingGenerator struct {
	mu            sync.Mutex
	current       presentation
	presentations []presentation
	running       bool
	sets          []presentation
}

func (g *recordingGenerator) SetParameters(f, gain, pan float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = presentation{f, gain, pan}
	g.sets = append(g.sets, g.current)
}

func (g *recordingGenerator) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = true
	g.presentations = append(g.presentations, g.current)
}

func (g *recordingGenerator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

func (g *recordingGenerator) snapshot() ([]presentation, presentation, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]presentation(nil), g.presentations...), g.current, g.running
}

// script answers each response window with the next scripted response.
// A TimedOut entry answers nothing and lets the window elapse.
type script struct {
	mu        sync.Mutex
	responses []Response
	session   *Session
	events    []Event
}

func (s *script) onEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if ev.Type != AwaitingResponse || len(s.responses) == 0 {
		s.mu.Unlock()
		return
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	session := s.session
	s.mu.Unlock()

	switch next {
	case Heard:
		session.Heard()
	case Missed:
		session.DidNotHear()
	}
}

func (s *script) eventsOf(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// fastConfig returns a config with test-friendly timing
func fastConfig(freqs ...float64) Config {
	cfg := DefaultConfig()
	cfg.Frequencies = freqs
	cfg.ToneDuration = time.Millisecond
	cfg.ResponseWindow = time.Second
	return cfg
}

// newScriptedSession wires a session to a recording generator and a script
func newScriptedSession(t *testing.T, cal calibration.Map, cfg Config, responses ...Response) (*Session, *recordingGenerator, *script) {
	t.Helper()
	gen := &recordingGenerator{}
	sc := &script{responses: responses}
	cfg.OnEvent = sc.onEvent

	session, err := NewSession(gen, cal, cfg)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	sc.session = session
	return session, gen, sc
}

func repeat(r Response, n int) []Response {
	out := make([]Response, n)
	for i := range out {
		out[i] = r
	}
	return out
}
