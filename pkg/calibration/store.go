// ABOUTME: JSON persistence for calibration maps
// ABOUTME: Encodes no-response frequencies explicitly since JSON has no infinity
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// FileVersion is the current calibration file format version
const FileVersion = 1

var (
	// ErrInvalidEntry is returned for malformed calibration file entries
	ErrInvalidEntry = errors.New("invalid calibration entry")

	// ErrNoCalibration is returned when no calibration file exists
	ErrNoCalibration = errors.New("no calibration data")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type fileEntry struct {
	FrequencyHz   float64  `json:"frequency_hz" validate:"gte=125,lte=16000"`
	ReferenceDbfs *float64 `json:"reference_dbfs,omitempty" validate:"omitempty,gte=-80,lte=0"`
	NoResponse    bool     `json:"no_response,omitempty"`
}

type file struct {
	Version   int         `json:"version" validate:"eq=1"`
	CreatedAt time.Time   `json:"created_at"`
	Entries   []fileEntry `json:"entries" validate:"required,min=1,dive"`
}

// Store reads and writes a calibration map at a fixed path
type Store struct {
	path string
}

// NewStore creates a store backed by the file at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the calibration map. A missing file yields ErrNoCalibration.
func (s *Store) Load() (Map, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Map{}, fmt.Errorf("%w: %s", ErrNoCalibration, s.path)
		}
		return Map{}, fmt.Errorf("failed to read calibration: %w", err)
	}
	return Decode(data)
}

// Save writes the calibration map atomically
func (s *Store) Save(m Map) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create calibration directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace calibration: %w", err)
	}
	return nil
}

// Encode serializes a calibration map
func Encode(m Map) ([]byte, error) {
	if m.Empty() {
		return nil, ErrNoCalibration
	}

	f := file{
		Version:   FileVersion,
		CreatedAt: time.Now().UTC(),
	}
	for _, freq := range m.Frequencies() {
		db, _ := m.Reference(freq)
		entry := fileEntry{FrequencyHz: freq}
		if math.IsInf(db, 1) {
			entry.NoResponse = true
		} else {
			ref := db
			entry.ReferenceDbfs = &ref
		}
		f.Entries = append(f.Entries, entry)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode calibration: %w", err)
	}
	return data, nil
}

// Decode parses and validates a calibration file
func Decode(data []byte) (Map, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return Map{}, fmt.Errorf("failed to parse calibration: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return Map{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	refs := make(map[float64]float64, len(f.Entries))
	for _, e := range f.Entries {
		if _, dup := refs[e.FrequencyHz]; dup {
			return Map{}, fmt.Errorf("%w: duplicate frequency %g Hz", ErrInvalidEntry, e.FrequencyHz)
		}
		switch {
		case e.NoResponse && e.ReferenceDbfs != nil:
			return Map{}, fmt.Errorf("%w: %g Hz has both a reference and no_response", ErrInvalidEntry, e.FrequencyHz)
		case e.NoResponse:
			refs[e.FrequencyHz] = NoResponse
		case e.ReferenceDbfs != nil:
			refs[e.FrequencyHz] = *e.ReferenceDbfs
		default:
			return Map{}, fmt.Errorf("%w: %g Hz has no reference", ErrInvalidEntry, e.FrequencyHz)
		}
	}

	return NewMap(refs), nil
}
