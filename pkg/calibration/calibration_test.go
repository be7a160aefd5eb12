// ABOUTME: Tests for calibration maps, persistence and the calibrator
// ABOUTME: Covers no-response encoding, validation and the adjust/confirm flow
package calibration

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewMapCopiesInput(t *testing.T) {
	refs := map[float64]float64{1000: -50}
	m := NewMap(refs)
	refs[1000] = 0

	db, ok := m.Reference(1000)
	if !ok || db != -50 {
		t.Errorf("expected -50, got %g (ok=%v)", db, ok)
	}

	entries := m.Entries()
	entries[1000] = 0
	if db, _ := m.Reference(1000); db != -50 {
		t.Error("Entries must return a copy")
	}
}

func TestMapResponded(t *testing.T) {
	m := NewMap(map[float64]float64{1000: -50, 8000: NoResponse})

	if !m.Responded(1000) {
		t.Error("expected 1000 Hz to have responded")
	}
	if m.Responded(8000) {
		t.Error("expected 8000 Hz to be no-response")
	}
	if m.Responded(250) {
		t.Error("expected absent frequency to be reported as not responded")
	}
}

func TestZeroMapIsEmpty(t *testing.T) {
	var m Map
	if !m.Empty() || m.Len() != 0 {
		t.Error("expected zero Map to be empty")
	}
	if _, ok := m.Reference(1000); ok {
		t.Error("expected no reference in zero Map")
	}
}

func TestMapFrequenciesSorted(t *testing.T) {
	m := NewMap(map[float64]float64{4000: -40, 250: -30, 1000: -50})
	freqs := m.Frequencies()
	expected := []float64{250, 1000, 4000}
	for i := range expected {
		if freqs[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, freqs)
		}
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested", "calibration.json"))
	m := NewMap(map[float64]float64{1000: -52.5, 2000: -48, 8000: NoResponse})

	if err := store.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", loaded.Len())
	}
	if db, _ := loaded.Reference(1000); db != -52.5 {
		t.Errorf("expected -52.5, got %g", db)
	}
	if db, _ := loaded.Reference(8000); !math.IsInf(db, 1) {
		t.Errorf("expected +Inf for no-response, got %g", db)
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.json"))
	_, err := store.Load()
	if !errors.Is(err, ErrNoCalibration) {
		t.Errorf("expected ErrNoCalibration, got %v", err)
	}
}

func TestStoreSaveEmptyMap(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "calibration.json"))
	if err := store.Save(Map{}); !errors.Is(err, ErrNoCalibration) {
		t.Errorf("expected ErrNoCalibration, got %v", err)
	}
}

func TestDecodeRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no entries", `{"version":1,"entries":[]}`},
		{"bad version", `{"version":2,"entries":[{"frequency_hz":1000,"reference_dbfs":-50}]}`},
		{"frequency too high", `{"version":1,"entries":[{"frequency_hz":20000,"reference_dbfs":-50}]}`},
		{"reference above full scale", `{"version":1,"entries":[{"frequency_hz":1000,"reference_dbfs":3}]}`},
		{"missing reference", `{"version":1,"entries":[{"frequency_hz":1000}]}`},
		{"both reference and no_response", `{"version":1,"entries":[{"frequency_hz":1000,"reference_dbfs":-50,"no_response":true}]}`},
		{"duplicate", `{"version":1,"entries":[{"frequency_hz":1000,"reference_dbfs":-50},{"frequency_hz":1000,"reference_dbfs":-40}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("expected ErrInvalidEntry, got %v", err)
			}
		})
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte("{")); err == nil {
		t.Error("expected parse error")
	}
}

type recordedTone struct {
	freq float64
	gain float64
	pan  float64
}

type fakeGenerator struct {
	mu      sync.Mutex
	params  []recordedTone
	running bool
}

func (g *fakeGenerator) SetParameters(f, gain, pan float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.params = append(g.params, recordedTone{f, gain, pan})
}

func (g *fakeGenerator) Start() {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()
}

func (g *fakeGenerator) Stop() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
}

func (g *fakeGenerator) last() recordedTone {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.params[len(g.params)-1]
}

func TestCalibratorRun(t *testing.T) {
	gen := &fakeGenerator{}
	cal := NewCalibrator(gen, []float64{1000, 2000})

	// Script: at 1000 Hz go up 5 dB twice and confirm; at 2000 Hz report no response.
	steps := []func(){
		func() { cal.Adjust(5) },
		func() { cal.Adjust(5) },
		func() { cal.Confirm() },
		func() { cal.NoResponse() },
	}
	next := 0
	cal.OnProgress = func(p Progress) {
		if next < len(steps) && !p.Done {
			step := steps[next]
			next++
			step()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m, err := cal.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if db, _ := m.Reference(1000); db != StartDbfs+10 {
		t.Errorf("expected %g dBFS at 1000 Hz, got %g", StartDbfs+10, db)
	}
	if m.Responded(2000) {
		t.Error("expected no response at 2000 Hz")
	}

	last := gen.last()
	if last.gain != MinDbfs {
		t.Errorf("expected tone silenced at end, got gain %g", last.gain)
	}
	if gen.running {
		t.Error("expected generator stopped at end")
	}
}

func TestCalibratorClampsLevel(t *testing.T) {
	gen := &fakeGenerator{}
	cal := NewCalibrator(gen, []float64{1000})

	steps := []func(){
		func() { cal.SetLevel(12) },
		func() { cal.Confirm() },
	}
	next := 0
	cal.OnProgress = func(p Progress) {
		if next < len(steps) {
			step := steps[next]
			next++
			step()
		}
	}

	m, err := cal.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if db, _ := m.Reference(1000); db != MaxDbfs {
		t.Errorf("expected clamp to %g, got %g", MaxDbfs, db)
	}
}

func TestCalibratorCancel(t *testing.T) {
	gen := &fakeGenerator{}
	cal := NewCalibrator(gen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cal.OnProgress = func(Progress) { cancel() }

	_, err := cal.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.running {
		t.Error("expected generator stopped on cancel")
	}
	if gen.last().gain != MinDbfs {
		t.Error("expected generator silenced on cancel")
	}
}

func TestCalibratorIgnoresInputWhenIdle(t *testing.T) {
	cal := NewCalibrator(&fakeGenerator{}, nil)
	cal.Confirm()
	if len(cal.actions) != 0 {
		t.Error("expected input to be dropped while not running")
	}
}
