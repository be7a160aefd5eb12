// ABOUTME: Implementations of the test, calibrate and tone commands
// ABOUTME: Each command runs its procedure under the TUI or a stdin prompt
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/puretone/internal/cli"
	"github.com/harperreed/puretone/internal/config"
	"github.com/harperreed/puretone/internal/remote"
	"github.com/harperreed/puretone/internal/ui"
	"github.com/harperreed/puretone/pkg/audiometry"
	"github.com/harperreed/puretone/pkg/calibration"
	"github.com/harperreed/puretone/pkg/tone"
)

// TestCmd runs a threshold test session
type TestCmd struct {
	Frequencies []float64 `help:"Test frequencies in Hz, in order" sep:","`
	Policy      string    `help:"Staircase policy (single, hughson-westlake)"`
	Remote      bool      `help:"Accept answers from remote responder devices"`
	Port        int       `help:"Remote responder port"`
	Name        string    `help:"Name advertised to remote responders (default: hostname-puretone)"`
	NoMDNS      bool      `name:"no-mdns" help:"Disable mDNS advertisement"`
}

// apply overrides cfg with the flags that were given
func (t *TestCmd) apply(cfg *config.File) error {
	if len(t.Frequencies) > 0 {
		cfg.Test.Frequencies = t.Frequencies
	}
	if t.Policy != "" {
		cfg.Test.Policy = t.Policy
	}
	if t.Remote {
		cfg.Remote.Enabled = true
	}
	if t.Port != 0 {
		cfg.Remote.Port = t.Port
	}
	if t.Name != "" {
		cfg.Remote.Name = t.Name
	}
	if t.NoMDNS {
		cfg.Remote.Advertise = false
	}
	return cfg.Validate()
}

// Run executes the test and prints the audiogram
func (t *TestCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if err := t.apply(&cfg); err != nil {
		return err
	}

	useTUI := !g.NoTUI
	closeLog, err := setupLogging(cfg.LogFile, useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	cal, err := loadCalibration(cfg)
	if err != nil {
		return err
	}

	sessionCfg, err := cfg.SessionConfig()
	if err != nil {
		return err
	}

	rig, err := openAudio(cfg, g.NoAudio)
	if err != nil {
		return err
	}
	defer rig.Close()

	var tuiProg *tea.Program
	var srv *remote.Server

	sessionCfg.OnEvent = func(ev audiometry.Event) {
		if tuiProg != nil {
			tuiProg.Send(ui.EventMsg{Event: ev})
		}
		if srv != nil {
			srv.Publish(ev)
		}
		if !useTUI {
			printPrompt(ev)
		}
	}

	session, err := audiometry.NewSession(rig.engine, cal, sessionCfg)
	if err != nil {
		return err
	}

	var controls *ui.Controls
	tuiDone := make(chan struct{})
	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.RunTest(session, session.Config().Frequencies, controls)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		go func() {
			defer close(tuiDone)
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	} else {
		close(tuiDone)
		go readResponses(os.Stdin, session)
		log.Printf("Answer with 'y' (heard) or 'n' (not heard) followed by enter")
	}

	if cfg.Remote.Enabled {
		srv = remote.New(remote.Config{
			Port:        cfg.Remote.Port,
			Name:        advertisedName(cfg.Remote.Name),
			SessionID:   session.ID(),
			Frequencies: len(session.Config().Frequencies),
			EnableMDNS:  cfg.Remote.Advertise,
			Debug:       g.Debug,
			OnClientsChanged: func(n int) {
				if tuiProg != nil {
					tuiProg.Send(ui.RemoteMsg{Clients: n})
				}
			},
		}, session)
		go func() {
			if err := srv.Start(); err != nil {
				log.Printf("Remote server error: %v", err)
			}
		}()
		defer srv.Stop()
		if tuiProg != nil {
			tuiProg.Send(ui.RemoteMsg{Address: fmt.Sprintf(":%d", cfg.Remote.Port)})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan sessionOutcome, 1)
	go func() {
		result, err := session.Run(ctx)
		done <- sessionOutcome{result, err}
	}()

	sigChan := notifySignals()
	var quit <-chan ui.QuitMsg
	if controls != nil {
		quit = controls.Quit
	}

	var tuiExit <-chan struct{}
	if tuiProg != nil {
		tuiExit = tuiDone
	}

	out := awaitRun(done, quit, tuiExit, sigChan, cancel)

	// The TUI keeps showing the audiogram until the listener quits
	if tuiProg != nil {
		if out.err == nil && quit != nil {
			select {
			case <-quit:
			case <-tuiDone:
			case <-sigChan:
			}
		}
		tuiProg.Quit()
		<-tuiDone
	}

	if out.err != nil {
		if errors.Is(out.err, context.Canceled) {
			log.Printf("Session cancelled")
			return nil
		}
		if errors.Is(out.err, audiometry.ErrNotCalibrated) || errors.Is(out.err, audiometry.ErrMissingCalibration) {
			return fmt.Errorf("%w (run 'puretone calibrate' first)", out.err)
		}
		return out.err
	}

	cli.PrintResults(os.Stdout, out.result)
	cli.PrintKeyValue(os.Stdout, "Policy", out.result.Policy)
	cli.PrintKeyValue(os.Stdout, "Session", out.result.SessionID)
	return nil
}

type sessionOutcome struct {
	result audiometry.Result
	err    error
}

// awaitRun blocks until done delivers. Quit keys, TUI exit and signals
// cancel the run, which still delivers on done.
func awaitRun[T any](done <-chan T, quit <-chan ui.QuitMsg, tuiExit <-chan struct{}, sigChan <-chan os.Signal, cancel context.CancelFunc) T {
	for {
		select {
		case out := <-done:
			return out
		case <-quit:
			log.Printf("Received quit signal from TUI")
			cancel()
			quit = nil
		case <-tuiExit:
			log.Printf("TUI exited, stopping")
			cancel()
			tuiExit = nil
		case sig := <-sigChan:
			log.Printf("Received %v signal, stopping", sig)
			cancel()
		}
	}
}

// loadCalibration reads the stored map. A missing file yields an empty map,
// which the session rejects as not calibrated.
func loadCalibration(cfg config.File) (calibration.Map, error) {
	path, err := cfg.CalibrationPath()
	if err != nil {
		return calibration.Map{}, err
	}

	cal, err := calibration.NewStore(path).Load()
	if err != nil {
		if errors.Is(err, calibration.ErrNoCalibration) {
			log.Printf("No calibration found at %s", path)
			return calibration.Map{}, nil
		}
		return calibration.Map{}, err
	}

	log.Printf("Loaded calibration for %d frequencies from %s", cal.Len(), path)
	return cal, nil
}

// advertisedName falls back to hostname-puretone
func advertisedName(name string) string {
	if name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-puretone", hostname)
}

// printPrompt tells a stdin listener what is happening
func printPrompt(ev audiometry.Event) {
	switch ev.Type {
	case audiometry.FrequencyStarted:
		fmt.Printf("%s ear, %s\n", ev.Ear, cli.FormatFrequency(ev.FrequencyHz))
	case audiometry.AwaitingResponse:
		fmt.Print("Did you hear the tone? [y/n] ")
	case audiometry.FrequencyTerminated:
		fmt.Printf("  threshold: %s\n", cli.FormatThreshold(ev.ThresholdHL))
	}
}

// readResponses forwards y/n lines from r until EOF
func readResponses(r io.Reader, responder ui.Responder) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var accepted bool
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "", "y", "yes":
			accepted = responder.Heard()
		case "n", "no":
			accepted = responder.DidNotHear()
		default:
			fmt.Println("Answer 'y' or 'n'")
			continue
		}
		if !accepted {
			fmt.Println("Wait for the tone to finish before answering")
		}
	}
}

// CalibrateCmd runs the calibration procedure and saves the map
type CalibrateCmd struct {
	Frequencies []float64 `help:"Frequencies to calibrate in Hz (default: test frequencies)" sep:","`
	Output      string    `short:"o" type:"path" help:"Calibration file to write (default: user config dir)"`
}

// Run executes calibration
func (c *CalibrateCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if len(c.Frequencies) > 0 {
		cfg.Test.Frequencies = c.Frequencies
	}
	if c.Output != "" {
		cfg.Calibration.Path = c.Output
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	path, err := cfg.CalibrationPath()
	if err != nil {
		return err
	}

	useTUI := !g.NoTUI
	closeLog, err := setupLogging(cfg.LogFile, useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	rig, err := openAudio(cfg, g.NoAudio)
	if err != nil {
		return err
	}
	defer rig.Close()

	calibrator := calibration.NewCalibrator(rig.engine, cfg.Test.Frequencies)

	var tuiProg *tea.Program
	var controls *ui.Controls
	tuiDone := make(chan struct{})

	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.RunCalibration(calibrator, len(cfg.Test.Frequencies), controls)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		calibrator.OnProgress = func(p calibration.Progress) {
			tuiProg.Send(ui.ProgressMsg{Progress: p})
		}
		go func() {
			defer close(tuiDone)
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	} else {
		close(tuiDone)
		calibrator.OnProgress = printProgress
		go readAdjustments(os.Stdin, calibrator)
		log.Printf("Commands: + / - (1 dB), ++ / -- (5 dB), a level in dBFS, c (confirm), x (no response)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		m   calibration.Map
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		m, err := calibrator.Run(ctx)
		done <- outcome{m, err}
	}()

	sigChan := notifySignals()
	var quit <-chan ui.QuitMsg
	if controls != nil {
		quit = controls.Quit
	}

	var tuiExit <-chan struct{}
	if tuiProg != nil {
		tuiExit = tuiDone
	}

	out := awaitRun(done, quit, tuiExit, sigChan, cancel)

	if out.err == nil {
		if err := calibration.NewStore(path).Save(out.m); err != nil {
			out.err = err
		} else {
			log.Printf("Calibration saved to %s", path)
		}
	}

	if tuiProg != nil {
		tuiProg.Send(ui.CalibrationDoneMsg{Map: out.m, Err: out.err})
		if quit != nil {
			select {
			case <-quit:
			case <-tuiDone:
			case <-sigChan:
			}
		}
		tuiProg.Quit()
		<-tuiDone
	}

	if out.err != nil {
		if errors.Is(out.err, context.Canceled) {
			log.Printf("Calibration cancelled, nothing saved")
			return nil
		}
		return out.err
	}

	cli.PrintCalibration(os.Stdout, out.m)
	cli.PrintSuccess("Calibration saved to " + path)
	return nil
}

// printProgress reports calibrator position to a stdin listener
func printProgress(p calibration.Progress) {
	if p.Done {
		return
	}
	fmt.Printf("[%d/%d] %s at %.1f dBFS\n", p.Index+1, p.Total, cli.FormatFrequency(p.FrequencyHz), p.LevelDbfs)
}

// readAdjustments forwards calibration commands from r until EOF
func readAdjustments(r io.Reader, input *calibration.Calibrator) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "+":
			input.Adjust(1)
		case "-":
			input.Adjust(-1)
		case "++":
			input.Adjust(5)
		case "--":
			input.Adjust(-5)
		case "c", "":
			input.Confirm()
		case "x":
			input.NoResponse()
		default:
			level, err := strconv.ParseFloat(cmd, 64)
			if err != nil {
				fmt.Println("Unknown command")
				continue
			}
			input.SetLevel(level)
		}
	}
}

// ToneCmd plays a steady tone
type ToneCmd struct {
	Freq     float64       `help:"Frequency in Hz" default:"1000"`
	Gain     float64       `help:"Level in dBFS" default:"-20"`
	Pan      float64       `help:"Pan from -1 (left) to 1 (right)" default:"0"`
	Duration time.Duration `help:"How long to play, 0 plays until interrupted" default:"2s"`
}

// Run plays the tone
func (t *ToneCmd) Run(g *Globals) error {
	if t.Freq < tone.MinFrequencyHz || t.Freq > tone.MaxFrequencyHz {
		return fmt.Errorf("frequency must be between %g and %g Hz", tone.MinFrequencyHz, tone.MaxFrequencyHz)
	}

	cfg, err := g.load()
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg.LogFile, false)
	if err != nil {
		return err
	}
	defer closeLog()

	rig, err := openAudio(cfg, g.NoAudio)
	if err != nil {
		return err
	}
	defer rig.Close()

	rig.engine.SetParameters(t.Freq, t.Gain, t.Pan)
	p := rig.engine.Parameters()
	log.Printf("Playing %s at %.1f dBFS, pan %.2f", cli.FormatFrequency(p.FrequencyHz), p.GainDbfs, p.Pan)
	rig.engine.Start()

	var timeout <-chan time.Time
	if t.Duration > 0 {
		timer := time.NewTimer(t.Duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-timeout:
	case sig := <-notifySignals():
		log.Printf("Received %v signal", sig)
	}

	rig.engine.Stop()
	return nil
}
