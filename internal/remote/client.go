// ABOUTME: Websocket client used by remote responder devices
// ABOUTME: Handles connection, handshake and routing of session updates
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/puretone/internal/protocol"
)

// ClientConfig holds responder client configuration
type ClientConfig struct {
	ServerAddr string
	Path       string
	ClientID   string
	Name       string
	DeviceInfo protocol.DeviceInfo
}

// ResponderClient connects to a test session and answers for the listener
type ResponderClient struct {
	config ClientConfig
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Message channels
	States  chan protocol.SessionState
	Results chan protocol.SessionResult
	Acks    chan protocol.ResponseAck

	hello protocol.ServerHello

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new responder client
func NewClient(config ClientConfig) *ResponderClient {
	if config.Path == "" {
		config.Path = protocol.Path
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ResponderClient{
		config:  config,
		States:  make(chan protocol.SessionState, 16),
		Results: make(chan protocol.SessionResult, 1),
		Acks:    make(chan protocol.ResponseAck, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect establishes the websocket connection and performs the handshake
func (c *ResponderClient) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake sends client/hello and waits for server/hello
func (c *ResponderClient) handshake() error {
	hello := protocol.ClientHello{
		ClientID:   c.config.ClientID,
		Name:       c.config.Name,
		Version:    protocol.ProtocolVersion,
		DeviceInfo: &c.config.DeviceInfo,
	}

	if err := c.sendJSON(protocol.Message{Type: protocol.TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var serverMsg protocol.Message
	if err := json.Unmarshal(data, &serverMsg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	switch serverMsg.Type {
	case protocol.TypeServerHello:
	case protocol.TypeServerError:
		var serr protocol.ServerError
		protocol.DecodePayload(serverMsg.Payload, &serr)
		return fmt.Errorf("server rejected client: %s", serr.Message)
	default:
		return fmt.Errorf("expected server/hello, got %s", serverMsg.Type)
	}

	if err := protocol.DecodePayload(serverMsg.Payload, &c.hello); err != nil {
		return err
	}

	log.Printf("Handshake complete with %s (session %s)", c.hello.Name, c.hello.SessionID)
	return nil
}

// ServerHello returns the handshake reply
func (c *ResponderClient) ServerHello() protocol.ServerHello {
	return c.hello
}

// sendJSON sends a JSON message
func (c *ResponderClient) sendJSON(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages
func (c *ResponderClient) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			c.handleJSONMessage(data)
		}
	}
}

// handleJSONMessage routes JSON messages
func (c *ResponderClient) handleJSONMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeSessionState:
		var st protocol.SessionState
		if err := protocol.DecodePayload(msg.Payload, &st); err != nil {
			log.Printf("Bad session state: %v", err)
			return
		}
		c.deliverState(st)

	case protocol.TypeSessionResult:
		var res protocol.SessionResult
		if err := protocol.DecodePayload(msg.Payload, &res); err != nil {
			log.Printf("Bad session result: %v", err)
			return
		}
		select {
		case c.Results <- res:
		case <-c.ctx.Done():
		}

	case protocol.TypeResponseAck:
		var ack protocol.ResponseAck
		if err := protocol.DecodePayload(msg.Payload, &ack); err != nil {
			log.Printf("Bad ack: %v", err)
			return
		}
		select {
		case c.Acks <- ack:
		case <-c.ctx.Done():
		}

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// deliverState replaces the oldest pending state when the reader falls behind
func (c *ResponderClient) deliverState(st protocol.SessionState) {
	for {
		select {
		case c.States <- st:
			return
		case <-c.ctx.Done():
			return
		default:
		}
		select {
		case <-c.States:
		default:
		}
	}
}

// SendHeard answers "heard" for the listener
func (c *ResponderClient) SendHeard() error {
	return c.sendJSON(protocol.Message{Type: protocol.TypeHeard, Payload: struct{}{}})
}

// SendNotHeard answers "not heard" for the listener
func (c *ResponderClient) SendNotHeard() error {
	return c.sendJSON(protocol.Message{Type: protocol.TypeNotHeard, Payload: struct{}{}})
}

// Done is closed when the connection ends
func (c *ResponderClient) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *ResponderClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *ResponderClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
