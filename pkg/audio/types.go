// ABOUTME: Audio type definitions
// ABOUTME: Defines the output stream format and float sample helpers
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SilenceDbfs is the level at or below which output is treated as silent
	SilenceDbfs = -80.0

	// Float32BytesPerSample is the size of one float32 LE sample on the wire
	Float32BytesPerSample = 4
)

// Format describes the rendered stream format
type Format struct {
	SampleRate int
	Channels   int
}

// FrameBytes returns the size in bytes of one interleaved float32 frame
func (f Format) FrameBytes() int {
	return f.Channels * Float32BytesPerSample
}

// DbfsToAmplitude converts a dBFS level to a linear amplitude factor.
// Levels at or below SilenceDbfs map to zero.
func DbfsToAmplitude(dbfs float64) float64 {
	if dbfs <= SilenceDbfs {
		return 0
	}
	return math.Pow(10, dbfs/20)
}

// AmplitudeToDbfs converts a linear amplitude to dBFS, flooring at SilenceDbfs
func AmplitudeToDbfs(amplitude float64) float64 {
	if amplitude <= 0 {
		return SilenceDbfs
	}
	db := 20 * math.Log10(amplitude)
	if db < SilenceDbfs {
		return SilenceDbfs
	}
	return db
}

// PutFloat32LE writes a float32 sample as 4 little-endian bytes
func PutFloat32LE(b []byte, sample float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(sample))
}

// Float32FromLE reads a little-endian float32 sample
func Float32FromLE(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
