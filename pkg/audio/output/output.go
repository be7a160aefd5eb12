// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for pull-based playback backends
package output

import (
	"io"

	"github.com/harperreed/puretone/pkg/audio"
)

// Output represents an audio output device that pulls PCM from a source
type Output interface {
	// Open initializes the output device for float32 interleaved PCM
	Open(format audio.Format) error

	// Play starts pulling from src until Close
	Play(src io.Reader) error

	// Close releases output resources
	Close() error
}
