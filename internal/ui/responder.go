// ABOUTME: Bubbletea model for a remote responder device
// ABOUTME: Shows the session state received over the network and sends answers
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/puretone/internal/cli"
	"github.com/harperreed/puretone/internal/protocol"
)

// Answerer sends the listener's answers to a remote session
type Answerer interface {
	SendHeard() error
	SendNotHeard() error
}

// StateMsg carries a session state update from the network
type StateMsg struct {
	State protocol.SessionState
}

// ResultMsg carries the final session result
type ResultMsg struct {
	Result protocol.SessionResult
}

// AckMsg reports whether an answer was counted
type AckMsg struct {
	Ack protocol.ResponseAck
}

// DisconnectedMsg reports that the session connection ended
type DisconnectedMsg struct{}

// ResponderModel represents the remote responder screen
type ResponderModel struct {
	input    Answerer
	controls *Controls

	server string
	state  protocol.SessionState
	result *protocol.SessionResult
	notice string
	closed bool

	width  int
	height int
}

// NewResponderModel creates a responder screen for the session at server
func NewResponderModel(input Answerer, server string, ctrl *Controls) ResponderModel {
	return ResponderModel{
		input:    input,
		controls: ctrl,
		server:   server,
		state:    protocol.SessionState{State: protocol.StateWaiting},
	}
}

// RunResponder creates the remote responder program
func RunResponder(input Answerer, server string, ctrl *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewResponderModel(input, server, ctrl), tea.WithAltScreen())
	return p, nil
}

// Init initializes the model
func (m ResponderModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m ResponderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StateMsg:
		m.state = msg.State
		if msg.State.State == protocol.StateTone {
			m.notice = ""
		}
	case ResultMsg:
		res := msg.Result
		m.result = &res
	case AckMsg:
		if msg.Ack.Accepted {
			m.notice = "Answer sent"
		} else {
			m.notice = "Wait for the tone to finish before answering"
		}
	case DisconnectedMsg:
		m.closed = true
	}

	return m, nil
}

// View renders the TUI
func (m ResponderModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(cli.TitleStyle.Render("PureTone responder"))
	sb.WriteString("\n")

	if m.result != nil {
		sb.WriteString(boxStyle.Render(strings.TrimRight(cli.SessionResultTable(*m.result).String(), "\n")))
		sb.WriteString("\n")
	} else {
		sb.WriteString(boxStyle.Render(m.renderState()))
		sb.WriteString("\n")
	}

	if m.closed {
		sb.WriteString(helpStyle.Render("Disconnected from " + m.server))
		sb.WriteString("\n")
	}

	if m.result != nil || m.closed {
		sb.WriteString(helpStyle.Render("q:Quit") + "\n")
	} else {
		sb.WriteString(helpStyle.Render("space:Heard  n:Not heard  q:Quit") + "\n")
	}
	return sb.String()
}

func (m ResponderModel) renderState() string {
	st := m.state
	lines := []string{
		fmt.Sprintf("Session:   %s", m.server),
		fmt.Sprintf("Ear:       %s", strings.ToUpper(st.Ear)),
		fmt.Sprintf("Frequency: %s", cli.FormatFrequency(st.FrequencyHz)),
		fmt.Sprintf("Progress:  [%s] %d/%d", renderBar(st.Completed, st.Total, 20), st.Completed, st.Total),
		"",
	}

	switch st.State {
	case protocol.StateTone:
		lines = append(lines, "Listen...")
	case protocol.StateListening:
		lines = append(lines, promptStyle.Render("Did you hear the tone? space = yes, n = no"))
	case protocol.StateAborted:
		lines = append(lines, "Test stopped")
	default:
		lines = append(lines, "Get ready")
	}

	if m.notice != "" {
		lines = append(lines, helpStyle.Render(m.notice))
	}
	return strings.Join(lines, "\n")
}

// handleKey handles keyboard input
func (m ResponderModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.requestQuit()
		return m, tea.Quit
	case " ", "enter", "y":
		m.send(true)
	case "n":
		m.send(false)
	}

	return m, nil
}

func (m *ResponderModel) send(heard bool) {
	if m.input == nil || m.closed || m.result != nil {
		return
	}

	var err error
	if heard {
		err = m.input.SendHeard()
	} else {
		err = m.input.SendNotHeard()
	}
	if err != nil {
		m.notice = fmt.Sprintf("Send failed: %v", err)
	}
}
