// ABOUTME: Phase-continuous sine tone engine
// ABOUTME: Renders stereo float32 PCM from an atomically swapped parameter snapshot
package tone

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/harperreed/puretone/pkg/audio"
)

const (
	// Generator range
	MinFrequencyHz = 125.0
	MaxFrequencyHz = 16000.0
	MinGainDbfs    = audio.SilenceDbfs
	MaxGainDbfs    = 0.0

	// Pan positions
	PanLeft   = -1.0
	PanCenter = 0.0
	PanRight  = 1.0

	// DefaultFrequencyHz is the frequency an engine starts with
	DefaultFrequencyHz = 1000.0

	// scratchFrames bounds the frames rendered per pass inside Read
	scratchFrames = 4096

	twoPi = 2 * math.Pi
)

// ErrInvalidSampleRate is returned when the engine cannot be built for a sample rate
var ErrInvalidSampleRate = errors.New("invalid sample rate")

// Parameters is the tone the engine should currently produce
type Parameters struct {
	FrequencyHz float64
	GainDbfs    float64
	Pan         float64
}

// Clamped returns p with every field forced into the generator's bounds
func (p Parameters) Clamped() Parameters {
	return Parameters{
		FrequencyHz: clamp(p.FrequencyHz, MinFrequencyHz, MaxFrequencyHz),
		GainDbfs:    clamp(p.GainDbfs, MinGainDbfs, MaxGainDbfs),
		Pan:         clamp(p.Pan, PanLeft, PanRight),
	}
}

// PanGains returns the linear left/right channel gains for a pan position.
// The law is linear, so total power is not constant across positions.
func PanGains(pan float64) (left, right float64) {
	left = 1.0
	if pan > 0 {
		left = 1.0 - pan
	}
	right = 1.0
	if pan < 0 {
		right = 1.0 + pan
	}
	return left, right
}

// snapshot is an immutable, render-ready view of Parameters
type snapshot struct {
	params    Parameters
	increment float64
	amplitude float64
	left      float64
	right     float64
}

// Engine synthesizes a continuous sine tone.
//
// SetParameters, Start and Stop may be called from any goroutine. Render and
// Read belong to the audio render path and must be called from one goroutine
// at a time; they never block or allocate.
type Engine struct {
	format  audio.Format
	params  atomic.Pointer[snapshot]
	running atomic.Bool

	// Render path only
	phase   float64
	scratch []float32
}

// NewEngine creates an engine for the given output format. The engine starts
// stopped and silent at DefaultFrequencyHz, centered.
func NewEngine(sampleRate, channels int) (*Engine, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	if float64(sampleRate)/2 <= MaxFrequencyHz {
		return nil, fmt.Errorf("%w: %d Hz cannot represent %.0f Hz tones", ErrInvalidSampleRate, sampleRate, MaxFrequencyHz)
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	e := &Engine{
		format:  audio.Format{SampleRate: sampleRate, Channels: channels},
		scratch: make([]float32, scratchFrames*channels),
	}
	e.SetParameters(DefaultFrequencyHz, MinGainDbfs, PanCenter)
	return e, nil
}

// Format returns the engine's output format
func (e *Engine) Format() audio.Format {
	return e.format
}

// SetParameters publishes a new tone. Out-of-range values are clamped.
// The change is picked up by the next rendered block.
func (e *Engine) SetParameters(frequencyHz, gainDbfs, pan float64) {
	p := Parameters{FrequencyHz: frequencyHz, GainDbfs: gainDbfs, Pan: pan}.Clamped()
	left, right := PanGains(p.Pan)

	e.params.Store(&snapshot{
		params:    p,
		increment: twoPi * p.FrequencyHz / float64(e.format.SampleRate),
		amplitude: audio.DbfsToAmplitude(p.GainDbfs),
		left:      left,
		right:     right,
	})
}

// Parameters returns the currently published tone
func (e *Engine) Parameters() Parameters {
	return e.params.Load().params
}

// Silence drops the gain to the silence floor, keeping frequency and pan
func (e *Engine) Silence() {
	p := e.Parameters()
	e.SetParameters(p.FrequencyHz, MinGainDbfs, p.Pan)
}

// Start lets the render path produce the tone
func (e *Engine) Start() {
	e.running.Store(true)
}

// Stop makes the render path output silence. Phase is preserved.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Running reports whether the tone is being rendered
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Render fills dst with interleaved frames and returns the frame count.
// With more than two channels, the extra channels are written as silence.
func (e *Engine) Render(dst []float32, channels int) int {
	if channels < 1 {
		return 0
	}
	frames := len(dst) / channels

	if !e.running.Load() {
		clear(dst[:frames*channels])
		return frames
	}

	s := e.params.Load()
	left := float32(s.amplitude * s.left)
	right := float32(s.amplitude * s.right)

	for i := 0; i < frames; i++ {
		e.phase += s.increment
		sample := float32(math.Sin(e.phase))

		base := i * channels
		dst[base] = sample * left
		if channels > 1 {
			dst[base+1] = sample * right
		}
		for c := 2; c < channels; c++ {
			dst[base+c] = 0
		}

		if e.phase >= twoPi {
			e.phase -= twoPi
		}
	}

	return frames
}

// RenderBlock renders frameCount frames into a newly allocated slice
func (e *Engine) RenderBlock(frameCount, channelCount int) []float32 {
	if frameCount <= 0 || channelCount <= 0 {
		return nil
	}
	out := make([]float32, frameCount*channelCount)
	e.Render(out, channelCount)
	return out
}

// Read implements io.Reader, producing float32 little-endian PCM in the
// engine's format. Only whole frames are written.
func (e *Engine) Read(p []byte) (int, error) {
	frameBytes := e.format.FrameBytes()
	total := len(p) / frameBytes
	written := 0

	for written < total {
		n := total - written
		if n > scratchFrames {
			n = scratchFrames
		}
		buf := e.scratch[:n*e.format.Channels]
		e.Render(buf, e.format.Channels)

		out := p[written*frameBytes:]
		for i, s := range buf {
			audio.PutFloat32LE(out[i*audio.Float32BytesPerSample:], s)
		}
		written += n
	}

	return written * frameBytes, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
