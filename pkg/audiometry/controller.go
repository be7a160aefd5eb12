// ABOUTME: Staircase controller for one ear and one frequency
// ABOUTME: Presents tones, opens the response window and applies the level policy
package audiometry

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/harperreed/puretone/pkg/audio"
)

// Controller runs the threshold search for a single frequency. It is used
// sequentially by a Session; only one Run may be active at a time.
type Controller struct {
	gen    Generator
	cfg    Config
	window *responseWindow
	emit   func(Event)
}

func newController(gen Generator, cfg Config, window *responseWindow, emit func(Event)) *Controller {
	return &Controller{gen: gen, cfg: cfg, window: window, emit: emit}
}

// Run searches for the threshold at frequencyHz in ear, given the 0 dB HL
// reference level. It returns the threshold in dB HL or NoResponse.
func (c *Controller) Run(ctx context.Context, ear Ear, frequencyHz, referenceDbfs float64) (int, error) {
	st := newTrialState(ear, frequencyHz, c.cfg.StartLevelHL)
	pan := ear.Pan()

	c.emit(Event{Type: FrequencyStarted, Ear: ear, FrequencyHz: frequencyHz, LevelHL: st.LevelHL})

	if math.IsInf(referenceDbfs, 1) {
		log.Printf("Skipping %s %g Hz: no response during calibration", ear, frequencyHz)
		return c.terminate(st, NoResponse, TerminationNotCalibrated), nil
	}

	for {
		if st.LevelHL > c.cfg.MaxLevelHL {
			log.Printf("Level exhausted for %s %g Hz at %d dB HL", ear, frequencyHz, st.LevelHL)
			return c.terminate(st, NoResponse, TerminationLevelExhausted), nil
		}

		stimulus := referenceDbfs + float64(st.LevelHL)
		if stimulus > 0 {
			log.Printf("Reached max output for %s %g Hz at %d dB HL", ear, frequencyHz, st.LevelHL)
			return c.terminate(st, NoResponse, TerminationOutputCeiling), nil
		}

		st.Trials++
		st.AttemptsAtLevel++

		c.gen.SetParameters(frequencyHz, stimulus, pan)
		c.gen.Start()
		c.emit(Event{
			Type:         TrialPresented,
			Ear:          ear,
			FrequencyHz:  frequencyHz,
			Trial:        st.Trials,
			LevelHL:      st.LevelHL,
			StimulusDbfs: stimulus,
		})

		err := sleep(ctx, c.cfg.ToneDuration)
		c.gen.Stop()
		if err != nil {
			return c.abort(frequencyHz, pan, err)
		}

		resp, err := c.window.await(ctx, c.cfg.ResponseWindow, func() {
			c.emit(Event{Type: AwaitingResponse, Ear: ear, FrequencyHz: frequencyHz, Trial: st.Trials, LevelHL: st.LevelHL})
		})
		if err != nil {
			return c.abort(frequencyHz, pan, err)
		}

		c.emit(Event{
			Type:        ResponseResolved,
			Ear:         ear,
			FrequencyHz: frequencyHz,
			Trial:       st.Trials,
			LevelHL:     st.LevelHL,
			Response:    resp,
		})

		level := st.LevelHL
		if threshold, done := c.cfg.Policy.Apply(st, resp); done {
			log.Printf("Threshold for %s %g Hz found: %d dB HL", ear, frequencyHz, threshold)
			return c.terminate(st, threshold, TerminationThreshold), nil
		}
		log.Printf("%s %g Hz: %s at %d dB HL, next %d dB HL", ear, frequencyHz, resp, level, st.LevelHL)

		if err := sleep(ctx, c.cfg.InterTrialDelay); err != nil {
			return c.abort(frequencyHz, pan, err)
		}
	}
}

func (c *Controller) terminate(st *TrialState, threshold int, why Termination) int {
	st.Terminated = true
	c.emit(Event{
		Type:        FrequencyTerminated,
		Ear:         st.Ear,
		FrequencyHz: st.FrequencyHz,
		Trial:       st.Trials,
		LevelHL:     st.LevelHL,
		ThresholdHL: threshold,
		Termination: why,
	})
	return threshold
}

// abort silences the generator and disarms any open window
func (c *Controller) abort(frequencyHz, pan float64, err error) (int, error) {
	c.gen.Stop()
	c.gen.SetParameters(frequencyHz, audio.SilenceDbfs, pan)
	c.window.close()
	return NoResponse, err
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
