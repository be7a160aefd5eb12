// ABOUTME: Entry point for the remote responder
// ABOUTME: Finds a running test session and answers for the listener from this device
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
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/harperreed/puretone/internal/cli"
	"github.com/harperreed/puretone/internal/discovery"
	"github.com/harperreed/puretone/internal/protocol"
	"github.com/harperreed/puretone/internal/remote"
	"github.com/harperreed/puretone/internal/ui"
	"github.com/harperreed/puretone/internal/version"
)

const description = "Answer a PureTone hearing test from another device"

// CLI defines the command-line interface
type CLI struct {
	Server   string        `help:"Manual session address host:port (skip mDNS)"`
	Session  string        `help:"Only join the session with this ID"`
	Name     string        `help:"Responder name (default: hostname-responder)"`
	Discover time.Duration `help:"How long to search for a session" default:"10s"`
	LogFile  string        `name:"log-file" help:"Log file path" default:"puretone-responder.log"`
	NoTUI    bool          `name:"no-tui" help:"Disable TUI, read answers from stdin"`
	Version  bool          `short:"v" help:"Show version information"`
}

func main() {
	var c CLI
	kong.Parse(&c,
		kong.Name("puretone-responder"),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(version.Product+" responder", description)),
	)

	if c.Version {
		cli.PrintVersion(version.Product+" responder", version.Version)
		return
	}

	if err := run(c); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

func run(c CLI) error {
	useTUI := !c.NoTUI

	f, err := os.OpenFile(c.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	name := c.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		name = fmt.Sprintf("%s-responder", hostname)
	}

	addr, path := c.Server, protocol.Path
	if addr == "" {
		server, err := discover(c.Session, c.Discover)
		if err != nil {
			return err
		}
		addr, path = server.Address(), server.Path
	}

	client := remote.NewClient(remote.ClientConfig{
		ServerAddr: addr,
		Path:       path,
		ClientID:   uuid.New().String(),
		Name:       name,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product + " responder",
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
	})
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer client.Close()

	hello := client.ServerHello()
	log.Printf("Joined %s (session %s)", hello.Name, hello.SessionID)
	if version.IsNewer(hello.SoftwareVersion, version.Version) {
		log.Printf("Session runs %s %s, newer than this responder (%s)", version.Product, hello.SoftwareVersion, version.Version)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if !useTUI {
		return runStdin(client, sigChan)
	}

	controls := ui.NewControls()
	tuiProg, err := ui.RunResponder(client, hello.Name, controls)
	if err != nil {
		return fmt.Errorf("failed to start TUI: %w", err)
	}

	go forwardUpdates(client, tuiProg.Send)

	tuiDone := make(chan struct{})
	go func() {
		defer close(tuiDone)
		if _, err := tuiProg.Run(); err != nil {
			log.Printf("TUI error: %v", err)
		}
	}()

	select {
	case <-controls.Quit:
		log.Printf("Received quit signal from TUI")
	case <-sigChan:
		log.Printf("Shutdown signal received")
		tuiProg.Quit()
	case <-tuiDone:
	}
	<-tuiDone

	return nil
}

// discover browses mDNS until a matching session appears
func discover(sessionID string, timeout time.Duration) (*discovery.ServerInfo, error) {
	log.Printf("Searching for test sessions...")
	disc := discovery.NewManager(discovery.Config{})
	disc.Browse()
	defer disc.Stop()

	deadline := time.After(timeout)
	for {
		select {
		case server := <-disc.Servers():
			if sessionID != "" && server.SessionID != sessionID {
				continue
			}
			log.Printf("Discovered session %s at %s", server.Name, server.Address())
			return server, nil
		case <-deadline:
			return nil, fmt.Errorf("no test session found after %v", timeout)
		}
	}
}

// forwardUpdates relays client channels to the TUI until the connection ends
func forwardUpdates(client *remote.ResponderClient, send func(tea.Msg)) {
	for {
		select {
		case st := <-client.States:
			send(ui.StateMsg{State: st})
		case res := <-client.Results:
			send(ui.ResultMsg{Result: res})
		case ack := <-client.Acks:
			send(ui.AckMsg{Ack: ack})
		case <-client.Done():
			send(ui.DisconnectedMsg{})
			return
		}
	}
}
