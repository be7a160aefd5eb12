// ABOUTME: Calibration map from test frequency to 0 dB HL reference level
// ABOUTME: Immutable lookup consumed read-only by the threshold test
package calibration

import (
	"math"
	"slices"
)

// NoResponse marks a frequency at which calibration never elicited a response
var NoResponse = math.Inf(1)

// StandardFrequencies returns the ordered test frequencies in Hz
func StandardFrequencies() []float64 {
	return []float64{1000, 2000, 4000, 8000, 500, 250}
}

// Map holds, per frequency, the dBFS output level that corresponds to 0 dB HL.
// A Map is immutable; the zero value is an empty map.
type Map struct {
	refs map[float64]float64
}

// NewMap copies refs into an immutable Map. Use NoResponse for frequencies
// that were never heard during calibration.
func NewMap(refs map[float64]float64) Map {
	m := Map{refs: make(map[float64]float64, len(refs))}
	for f, db := range refs {
		m.refs[f] = db
	}
	return m
}

// Reference returns the 0 dB HL reference for a frequency
func (m Map) Reference(frequencyHz float64) (dbfs float64, ok bool) {
	dbfs, ok = m.refs[frequencyHz]
	return dbfs, ok
}

// Responded reports whether calibration produced a finite reference
func (m Map) Responded(frequencyHz float64) bool {
	db, ok := m.refs[frequencyHz]
	return ok && !math.IsInf(db, 1)
}

// Len returns the number of calibrated frequencies
func (m Map) Len() int {
	return len(m.refs)
}

// Empty reports whether the map holds no calibration data
func (m Map) Empty() bool {
	return len(m.refs) == 0
}

// Frequencies returns the calibrated frequencies in ascending order
func (m Map) Frequencies() []float64 {
	freqs := make([]float64, 0, len(m.refs))
	for f := range m.refs {
		freqs = append(freqs, f)
	}
	slices.Sort(freqs)
	return freqs
}

// Entries returns a copy of the underlying mapping
func (m Map) Entries() map[float64]float64 {
	out := make(map[float64]float64, len(m.refs))
	for f, db := range m.refs {
		out[f] = db
	}
	return out
}
