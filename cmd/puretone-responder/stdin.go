// ABOUTME: Line-based responder for terminals without the TUI
// ABOUTME: Prints session prompts and sends y/n answers read from stdin
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/harperreed/puretone/internal/cli"
	"github.com/harperreed/puretone/internal/protocol"
	"github.com/harperreed/puretone/internal/remote"
	"github.com/harperreed/puretone/internal/ui"
)

// runStdin answers from stdin until the session ends or a signal arrives
func runStdin(client *remote.ResponderClient, sigChan <-chan os.Signal) error {
	go readAnswers(os.Stdin, client)

	for {
		select {
		case st := <-client.States:
			printState(os.Stdout, st)
		case res := <-client.Results:
			fmt.Println(cli.HeaderStyle.Render("Hearing thresholds"))
			fmt.Print(cli.SessionResultTable(res).String())
			return nil
		case ack := <-client.Acks:
			if !ack.Accepted {
				fmt.Println("Wait for the tone to finish before answering")
			}
		case <-client.Done():
			return fmt.Errorf("disconnected from session")
		case sig := <-sigChan:
			log.Printf("Received %v signal", sig)
			return nil
		}
	}
}

// readAnswers sends y/n lines from r until EOF
func readAnswers(r io.Reader, input ui.Answerer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var err error
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "", "y", "yes":
			err = input.SendHeard()
		case "n", "no":
			err = input.SendNotHeard()
		default:
			fmt.Println("Answer 'y' or 'n'")
			continue
		}
		if err != nil {
			log.Printf("Failed to send answer: %v", err)
			return
		}
	}
}

func printState(w io.Writer, st protocol.SessionState) {
	switch st.State {
	case protocol.StateWaiting:
		if st.Ear != "" {
			fmt.Fprintf(w, "%s ear, %s (%d/%d)\n", st.Ear, cli.FormatFrequency(st.FrequencyHz), st.Completed, st.Total)
		}
	case protocol.StateListening:
		fmt.Fprint(w, "Did you hear the tone? [y/n] ")
	case protocol.StateAborted:
		fmt.Fprintln(w, "Test stopped")
	}
}
