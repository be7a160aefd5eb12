// ABOUTME: Oto-based audio output implementation
// ABOUTME: Plays float32 PCM pulled from a reader using the oto library
package output

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/harperreed/puretone/pkg/audio"
)

// DefaultOtoBuffer is the device buffer length; it bounds parameter-change latency
const DefaultOtoBuffer = 40 * time.Millisecond

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	format     audio.Format
	bufferTime time.Duration
	ready      bool
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{bufferTime: DefaultOtoBuffer}
}

// SetBufferDuration overrides the device buffer length. Call before Open.
func (o *Oto) SetBufferDuration(d time.Duration) {
	if d > 0 {
		o.bufferTime = d
	}
}

// Open initializes the output device
func (o *Oto) Open(format audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	// oto only allows one context per process
	if o.otoCtx != nil {
		if o.format != format {
			log.Printf("Warning: format change (%dHz %dch -> %dHz %dch) ignored, oto cannot reinitialize",
				o.format.SampleRate, o.format.Channels, format.SampleRate, format.Channels)
		}
		if !o.ready {
			if err := o.otoCtx.Resume(); err != nil {
				return fmt.Errorf("failed to resume oto context: %w", err)
			}
			o.ready = true
		}
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   o.bufferTime,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.format = format
	o.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels, float32", format.SampleRate, format.Channels)

	return nil
}

// Play starts a persistent player reading from src
func (o *Oto) Play(src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.ready {
		return fmt.Errorf("output not initialized")
	}
	if o.player != nil {
		return fmt.Errorf("output already playing")
	}

	o.player = o.otoCtx.NewPlayer(src)
	bufferBytes := int(o.bufferTime.Seconds()*float64(o.format.SampleRate)) * o.format.FrameBytes()
	o.player.SetBufferSize(bufferBytes)
	o.player.Play()

	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Printf("Error closing oto player: %v", err)
		}
		o.player = nil
	}
	if o.otoCtx != nil && o.ready {
		if err := o.otoCtx.Suspend(); err != nil {
			log.Printf("Error suspending oto context: %v", err)
		}
		o.ready = false
	}
	return nil
}
