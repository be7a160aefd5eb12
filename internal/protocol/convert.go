// ABOUTME: Payload decoding and conversion from session types
// ABOUTME: Validates incoming payloads and builds outgoing state and results
package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/harperreed/puretone/pkg/audiometry"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// DecodePayload converts a generic payload into v and validates it
func DecodePayload(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// StateFromEvent maps a session event onto the responder-visible state. It
// returns false for events that do not change that state.
func StateFromEvent(ev audiometry.Event, prev SessionState) (SessionState, bool) {
	st := prev
	st.SessionID = ev.SessionID

	switch ev.Type {
	case audiometry.FrequencyStarted:
		st.State = StateWaiting
		st.Ear = ev.Ear.String()
		st.FrequencyHz = ev.FrequencyHz
		st.Trial = 0
	case audiometry.TrialPresented:
		st.State = StateTone
		st.Trial = ev.Trial
	case audiometry.AwaitingResponse:
		st.State = StateListening
	case audiometry.ResponseResolved:
		st.State = StateWaiting
	case audiometry.FrequencyTerminated:
		st.Completed++
	case audiometry.SessionCompleted:
		st.State = StateComplete
	case audiometry.SessionAborted:
		st.State = StateAborted
	default:
		return prev, false
	}
	return st, true
}

// ResultFromSession converts a session result into its wire form
func ResultFromSession(r audiometry.Result) SessionResult {
	return SessionResult{
		SessionID:   r.SessionID,
		Policy:      r.Policy,
		Left:        thresholds(r.Frequencies, r.Left),
		Right:       thresholds(r.Frequencies, r.Right),
		StartedAt:   r.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt: r.CompletedAt.UTC().Format(time.RFC3339),
	}
}

func thresholds(freqs []float64, t audiometry.Thresholds) []Threshold {
	out := make([]Threshold, 0, len(freqs))
	for _, f := range freqs {
		v, ok := t[f]
		if !ok {
			continue
		}
		out = append(out, Threshold{
			FrequencyHz: f,
			ThresholdHL: v,
			NoResponse:  v == audiometry.NoResponse,
		})
	}
	return out
}
