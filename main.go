// ABOUTME: Entry point for the PureTone audiometer
// ABOUTME: Parses CLI commands and wires config, audio, session and TUI together
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/harperreed/puretone/internal/cli"
	"github.com/harperreed/puretone/internal/config"
	"github.com/harperreed/puretone/internal/version"
	"github.com/harperreed/puretone/pkg/audio/output"
	"github.com/harperreed/puretone/pkg/tone"
)

const description = "Pure-tone hearing threshold test"

// Globals are flags shared by every command
type Globals struct {
	Config  string `short:"c" type:"path" help:"Path to TOML config file (optional)"`
	LogFile string `name:"log-file" help:"Log file path (default: puretone.log)"`
	NoTUI   bool   `name:"no-tui" help:"Disable TUI, read answers from stdin and stream logs"`
	NoAudio bool   `name:"no-audio" help:"Render tones without an audio device"`
	Debug   bool   `help:"Enable debug logging"`
}

// CLI defines the command-line interface
type CLI struct {
	Globals

	Test      TestCmd      `cmd:"" default:"withargs" help:"Run the threshold test for both ears"`
	Calibrate CalibrateCmd `cmd:"" help:"Find the reference level for each test frequency"`
	Tone      ToneCmd      `cmd:"" help:"Play a steady tone"`
	Version   VersionCmd   `cmd:"" help:"Show version information"`
}

func main() {
	var c CLI
	ctx := kong.Parse(&c,
		kong.Name("puretone"),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(version.Product, description)),
	)

	if err := ctx.Run(&c.Globals); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// load reads the config file and applies global overrides
func (g *Globals) load() (config.File, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return config.File{}, err
	}
	if g.LogFile != "" {
		cfg.LogFile = g.LogFile
	}
	return cfg, nil
}

// setupLogging routes log output to the log file, and to stdout as well when
// the TUI is off. The returned function closes the file.
func setupLogging(path string, useTUI bool) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

// audioRig is a tone engine attached to an output
type audioRig struct {
	engine *tone.Engine
	out    output.Output
}

// openAudio creates the engine and starts the output pulling from it
func openAudio(cfg config.File, headless bool) (*audioRig, error) {
	engine, err := tone.NewEngine(cfg.Audio.SampleRate, 2)
	if err != nil {
		return nil, err
	}

	var out output.Output
	if headless {
		out = output.NewNull(output.DefaultBlockDuration)
	} else {
		o := output.NewOto()
		o.SetBufferDuration(cfg.Audio.BufferDuration())
		out = o
	}

	if err := out.Open(engine.Format()); err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}
	if err := out.Play(engine); err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to start audio output: %w", err)
	}

	return &audioRig{engine: engine, out: out}, nil
}

// Close silences the engine and releases the output
func (r *audioRig) Close() {
	r.engine.Stop()
	r.engine.Silence()

	// Let the silent block reach the device before closing
	time.Sleep(50 * time.Millisecond)

	if err := r.out.Close(); err != nil {
		log.Printf("Error closing audio output: %v", err)
	}
}

// notifySignals returns a channel receiving SIGINT and SIGTERM
func notifySignals() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// VersionCmd prints the version
type VersionCmd struct{}

// Run prints the product and version
func (v *VersionCmd) Run(g *Globals) error {
	cli.PrintVersion(version.Product, version.Version)
	return nil
}
