// ABOUTME: Headless audio output
// ABOUTME: Pulls audio from a source at the real-time block rate without a device
package output

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harperreed/puretone/pkg/audio"
)

// DefaultBlockDuration is the render period of the Null output
const DefaultBlockDuration = 10 * time.Millisecond

// Null pulls blocks from its source on a ticker and discards them.
// It stands in for a device when none is available.
type Null struct {
	blockDuration time.Duration
	format        audio.Format
	ready         bool

	// Sink, when set, receives each rendered block. Called from the pull goroutine.
	Sink func(block []byte)

	frames   atomic.Int64
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNull creates a headless output rendering blocks of the given duration
func NewNull(blockDuration time.Duration) *Null {
	if blockDuration <= 0 {
		blockDuration = DefaultBlockDuration
	}
	return &Null{
		blockDuration: blockDuration,
		stopChan:      make(chan struct{}),
	}
}

// Open records the stream format
func (n *Null) Open(format audio.Format) error {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fmt.Errorf("invalid format: %dHz %dch", format.SampleRate, format.Channels)
	}
	n.format = format
	n.ready = true
	log.Printf("Headless audio output initialized: %dHz, %d channels", format.SampleRate, format.Channels)
	return nil
}

// Play starts the pull loop
func (n *Null) Play(src io.Reader) error {
	if !n.ready {
		return fmt.Errorf("output not initialized")
	}

	blockFrames := int(n.blockDuration.Seconds() * float64(n.format.SampleRate))
	if blockFrames < 1 {
		blockFrames = 1
	}
	buf := make([]byte, blockFrames*n.format.FrameBytes())

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(n.blockDuration)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				read, err := src.Read(buf)
				if err != nil {
					log.Printf("Headless output read error: %v", err)
					return
				}
				n.frames.Add(int64(read / n.format.FrameBytes()))
				if n.Sink != nil {
					n.Sink(buf[:read])
				}
			case <-n.stopChan:
				return
			}
		}
	}()

	return nil
}

// Frames returns the number of frames pulled so far
func (n *Null) Frames() int64 {
	return n.frames.Load()
}

// Close stops the pull loop
func (n *Null) Close() error {
	n.stopOnce.Do(func() {
		close(n.stopChan)
	})
	n.wg.Wait()
	n.ready = false
	return nil
}
