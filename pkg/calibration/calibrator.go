// ABOUTME: Interactive calibration procedure
// ABOUTME: Walks the listener through each frequency to find the barely audible level
package calibration

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
)

const (
	// StartDbfs is the level each calibration tone begins at
	StartDbfs = -60.0

	// Slider bounds for the adjustable level
	MinDbfs = -80.0
	MaxDbfs = 0.0

	// CenterPan plays calibration tones to both ears
	CenterPan = 0.0
)

// Generator is the tone source the calibrator drives
type Generator interface {
	SetParameters(frequencyHz, gainDbfs, pan float64)
	Start()
	Stop()
}

// Progress describes the calibrator's current position
type Progress struct {
	Index       int
	Total       int
	FrequencyHz float64
	LevelDbfs   float64
	Done        bool
}

type actionKind int

const (
	actionAdjust actionKind = iota
	actionSet
	actionConfirm
	actionNoResponse
)

type action struct {
	kind  actionKind
	value float64
}

// Calibrator runs the per-frequency level search
type Calibrator struct {
	gen         Generator
	frequencies []float64
	actions     chan action

	// OnProgress, when set, is called from Run after every change
	OnProgress func(Progress)

	mu      sync.Mutex
	running bool
}

// NewCalibrator creates a calibrator for the given frequencies.
// An empty list means StandardFrequencies.
func NewCalibrator(gen Generator, frequencies []float64) *Calibrator {
	if len(frequencies) == 0 {
		frequencies = StandardFrequencies()
	}
	return &Calibrator{
		gen:         gen,
		frequencies: append([]float64(nil), frequencies...),
		actions:     make(chan action, 16),
	}
}

// Adjust moves the current level by delta dB
func (c *Calibrator) Adjust(deltaDB float64) {
	c.send(action{kind: actionAdjust, value: deltaDB})
}

// SetLevel moves the current level to an absolute dBFS value
func (c *Calibrator) SetLevel(dbfs float64) {
	c.send(action{kind: actionSet, value: dbfs})
}

// Confirm records the current level as the frequency's 0 dB HL reference
func (c *Calibrator) Confirm() {
	c.send(action{kind: actionConfirm})
}

// NoResponse records that the tone could not be heard at any level
func (c *Calibrator) NoResponse() {
	c.send(action{kind: actionNoResponse})
}

func (c *Calibrator) send(a action) {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return
	}

	select {
	case c.actions <- a:
	default:
		log.Printf("Calibration input dropped: queue full")
	}
}

// Run plays each frequency in turn until the listener confirms a level or
// reports no response, then returns the completed map.
func (c *Calibrator) Run(ctx context.Context) (Map, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return Map{}, fmt.Errorf("calibration already running")
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	refs := make(map[float64]float64, len(c.frequencies))

	for i, freq := range c.frequencies {
		level := StartDbfs
		c.gen.SetParameters(freq, level, CenterPan)
		c.gen.Start()
		c.progress(Progress{Index: i, Total: len(c.frequencies), FrequencyHz: freq, LevelDbfs: level})
		log.Printf("Calibrating %g Hz", freq)

	frequency:
		for {
			select {
			case <-ctx.Done():
				c.silence(freq)
				return Map{}, ctx.Err()

			case a := <-c.actions:
				switch a.kind {
				case actionAdjust:
					level = clampLevel(level + a.value)
				case actionSet:
					level = clampLevel(a.value)
				case actionConfirm:
					refs[freq] = level
					log.Printf("Calibration for %g Hz saved: %.1f dBFS", freq, level)
					break frequency
				case actionNoResponse:
					refs[freq] = NoResponse
					log.Printf("No response recorded for %g Hz", freq)
					break frequency
				}
				c.gen.SetParameters(freq, level, CenterPan)
				c.progress(Progress{Index: i, Total: len(c.frequencies), FrequencyHz: freq, LevelDbfs: level})
			}
		}
	}

	last := c.frequencies[len(c.frequencies)-1]
	c.silence(last)
	c.progress(Progress{Index: len(c.frequencies), Total: len(c.frequencies), Done: true})
	log.Printf("Calibration complete: %d frequencies", len(refs))

	return NewMap(refs), nil
}

func (c *Calibrator) silence(freq float64) {
	c.gen.Stop()
	c.gen.SetParameters(freq, MinDbfs, CenterPan)
}

func (c *Calibrator) progress(p Progress) {
	if c.OnProgress != nil {
		c.OnProgress(p)
	}
}

func clampLevel(dbfs float64) float64 {
	return math.Max(MinDbfs, math.Min(MaxDbfs, dbfs))
}
