// ABOUTME: Application configuration loaded from an optional TOML file
// ABOUTME: Defaults, validation tags and conversion into the test session config
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/harperreed/puretone/pkg/audiometry"
	"github.com/harperreed/puretone/pkg/calibration"
)

// Defaults not owned by the audiometry package
const (
	DefaultSampleRate  = 48000
	DefaultBufferMs    = 40
	DefaultRemotePort  = 8928
	DefaultLogFile     = "puretone.log"
	calibrationDirName = "puretone"
	calibrationFile    = "calibration.json"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report TOML key names instead of Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// File is the on-disk configuration
type File struct {
	LogFile     string             `toml:"log_file" validate:"omitempty,max=4096"`
	Test        TestSection        `toml:"test"`
	Audio       AudioSection       `toml:"audio"`
	Calibration CalibrationSection `toml:"calibration"`
	Remote      RemoteSection      `toml:"remote"`
}

// TestSection holds threshold test procedure settings
type TestSection struct {
	Frequencies     []float64     `toml:"frequencies" validate:"omitempty,unique,dive,gte=125,lte=16000"`
	StartLevelHL    int           `toml:"start_level_hl" validate:"gte=-10,lte=120"`
	MaxLevelHL      int           `toml:"max_level_hl" validate:"gtefield=StartLevelHL,lte=120"`
	MinLevelHL      int           `toml:"min_level_hl" validate:"gte=-20,ltefield=StartLevelHL"`
	StepUpDB        int           `toml:"step_up_db" validate:"gte=1,lte=20"`
	StepDownDB      int           `toml:"step_down_db" validate:"gte=1,lte=30"`
	Confirmations   int           `toml:"confirmations" validate:"gte=1,lte=5"`
	ToneDuration    time.Duration `toml:"tone_duration" validate:"gt=0"`
	ResponseWindow  time.Duration `toml:"response_window" validate:"gt=0"`
	InterTrialDelay time.Duration `toml:"inter_trial_delay" validate:"gte=0"`
	Policy          string        `toml:"policy" validate:"oneof=single hughson-westlake"`
}

// AudioSection holds output device settings
type AudioSection struct {
	SampleRate int `toml:"sample_rate" validate:"gte=8000,lte=192000"`
	BufferMs   int `toml:"buffer_ms" validate:"gte=10,lte=500"`
}

// CalibrationSection locates the calibration file
type CalibrationSection struct {
	Path string `toml:"path" validate:"omitempty,max=4096"`
}

// RemoteSection configures the remote responder endpoint
type RemoteSection struct {
	Enabled   bool   `toml:"enabled"`
	Port      int    `toml:"port" validate:"gte=1,lte=65535"`
	Name      string `toml:"name" validate:"omitempty,max=63"`
	Advertise bool   `toml:"advertise"`
}

// Default returns the configuration used when no file is given
func Default() File {
	return File{
		LogFile: DefaultLogFile,
		Test: TestSection{
			Frequencies:    calibration.StandardFrequencies(),
			StartLevelHL:   audiometry.DefaultStartLevelHL,
			MaxLevelHL:     audiometry.DefaultMaxLevelHL,
			MinLevelHL:     audiometry.DefaultMinLevelHL,
			StepUpDB:       audiometry.DefaultStepUpDB,
			StepDownDB:     audiometry.DefaultStepDownDB,
			Confirmations:  audiometry.DefaultConfirmations,
			ToneDuration:   audiometry.DefaultToneDuration,
			ResponseWindow: audiometry.DefaultResponseWindow,
			Policy:         audiometry.PolicySingle,
		},
		Audio: AudioSection{
			SampleRate: DefaultSampleRate,
			BufferMs:   DefaultBufferMs,
		},
		Remote: RemoteSection{
			Port:      DefaultRemotePort,
			Advertise: true,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (File, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return File{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Printf("Ignoring unknown config key: %s", key)
	}

	if err := cfg.Validate(); err != nil {
		return File{}, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints
func (f File) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	out := &ValidationError{}
	for _, e := range verrs {
		out.Add(fieldPath(e), formatValidationMessage(e))
	}
	return out
}

// SessionConfig converts the test section into a session configuration
func (f File) SessionConfig() (audiometry.Config, error) {
	t := f.Test
	cfg := audiometry.Config{
		Frequencies:     append([]float64(nil), t.Frequencies...),
		StartLevelHL:    t.StartLevelHL,
		MaxLevelHL:      t.MaxLevelHL,
		MinLevelHL:      t.MinLevelHL,
		StepUpDB:        t.StepUpDB,
		StepDownDB:      t.StepDownDB,
		Confirmations:   t.Confirmations,
		ToneDuration:    t.ToneDuration,
		ResponseWindow:  t.ResponseWindow,
		InterTrialDelay: t.InterTrialDelay,
	}

	policy, err := audiometry.PolicyByName(t.Policy, cfg)
	if err != nil {
		return audiometry.Config{}, err
	}
	cfg.Policy = policy
	return cfg, nil
}

// CalibrationPath returns the configured calibration file, falling back to
// the user config directory
func (f File) CalibrationPath() (string, error) {
	if f.Calibration.Path != "" {
		return f.Calibration.Path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, calibrationDirName, calibrationFile), nil
}

// BufferDuration returns the output buffer as a duration
func (a AudioSection) BufferDuration() time.Duration {
	return time.Duration(a.BufferMs) * time.Millisecond
}

// fieldPath drops the root struct name from the namespace
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "unique":
		return "must not contain duplicates"
	case "gtefield":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "ltefield":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
