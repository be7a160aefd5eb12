// ABOUTME: Websocket endpoint that lets remote devices answer for the listener
// ABOUTME: Manages responder connections and broadcasts session state
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harperreed/puretone/internal/discovery"
	"github.com/harperreed/puretone/internal/protocol"
	"github.com/harperreed/puretone/internal/version"
	"github.com/harperreed/puretone/pkg/audiometry"
)

const (
	sendBufferSize = 32
	pingInterval   = 30 * time.Second
	writeDeadline  = 10 * time.Second
	helloTimeout   = 5 * time.Second
)

// Responder receives answers from remote devices
type Responder interface {
	Heard() bool
	DidNotHear() bool
}

// Config holds server configuration
type Config struct {
	Port        int
	Name        string
	SessionID   string
	Frequencies int
	EnableMDNS  bool
	Debug       bool

	// OnClientsChanged is called with the responder count after every
	// connect and disconnect
	OnClientsChanged func(int)
}

// Server accepts responder connections for one test session
type Server struct {
	config    Config
	serverID  string
	responder Responder

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// Client management
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// Last published state, replayed to new clients
	state   protocol.SessionState
	stateMu sync.Mutex

	// mDNS discovery
	mdnsManager *discovery.Manager

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected responder
type Client struct {
	ID       string
	Name     string
	Conn     *websocket.Conn
	Device   *protocol.DeviceInfo
	sendChan chan interface{}
}

// New creates a server routing responses to responder
func New(config Config, responder Responder) *Server {
	if config.Name == "" {
		config.Name = "PureTone"
	}

	s := &Server{
		config:    config,
		serverID:  uuid.New().String(),
		responder: responder,
		mux:       http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin != "" {
					log.Printf("Accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		clients:  make(map[string]*Client),
		stopChan: make(chan struct{}),
		state: protocol.SessionState{
			SessionID: config.SessionID,
			State:     protocol.StateWaiting,
			Total:     2 * config.Frequencies,
		},
	}
	s.mux.HandleFunc(protocol.Path, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	log.Printf("Remote responder server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			SessionID:   s.config.SessionID,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("WebSocket server listening on %s%s", addr, protocol.Path)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		log.Printf("Remote server shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	s.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	log.Printf("Remote server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Close disconnects every client without an HTTP listener, for use with Handler
func (s *Server) Close() {
	s.Stop()
	s.shutdown()
	s.wg.Wait()
}

// shutdown rejects new connections and closes existing ones
func (s *Server) shutdown() {
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
	s.clientsMu.RUnlock()
}

// Clients returns the number of connected responders
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Publish forwards a session event to every responder
func (s *Server) Publish(ev audiometry.Event) {
	if ev.Type == audiometry.SessionCompleted && ev.Result != nil {
		s.broadcast(protocol.TypeSessionResult, protocol.ResultFromSession(*ev.Result))
	}

	s.stateMu.Lock()
	st, changed := protocol.StateFromEvent(ev, s.state)
	if changed {
		s.state = st
	}
	s.stateMu.Unlock()

	if changed {
		s.broadcast(protocol.TypeSessionState, st)
	}
}

func (s *Server) currentState() protocol.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// broadcast queues a message for every client without blocking
func (s *Server) broadcast(msgType string, payload interface{}) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		if err := s.sendMessage(c, msgType, payload); err != nil && s.config.Debug {
			log.Printf("[DEBUG] Dropping %s for %s: %v", msgType, c.Name, err)
		}
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection manages a responder connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	hello, err := readHello(conn)
	if err != nil {
		log.Printf("Handshake failed: %v", err)
		writeError(conn, "bad_hello", err.Error())
		return
	}

	log.Printf("Responder hello: %s (ID: %s)", hello.Name, hello.ClientID)
	if hello.DeviceInfo != nil && !version.Compatible(hello.DeviceInfo.SoftwareVersion, version.Version) {
		log.Printf("Warning: responder %s runs %s, session runs %s", hello.Name, hello.DeviceInfo.SoftwareVersion, version.Version)
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		Device:   hello.DeviceInfo,
		sendChan: make(chan interface{}, sendBufferSize),
	}

	s.clientsMu.Lock()
	if existing, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", client.ID, existing.Name)
		writeError(conn, "duplicate_client_id", "Client ID already connected")
		return
	}
	s.clients[client.ID] = client
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.notifyClients(count)

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		count := len(s.clients)
		s.clientsMu.Unlock()
		close(client.sendChan)
		log.Printf("Responder disconnected: %s", client.Name)
		s.notifyClients(count)
	}()

	serverHello := protocol.ServerHello{
		ServerID:        s.serverID,
		SessionID:       s.config.SessionID,
		Name:            s.config.Name,
		Version:         protocol.ProtocolVersion,
		SoftwareVersion: version.Version,
	}
	if err := s.sendMessage(client, protocol.TypeServerHello, serverHello); err != nil {
		log.Printf("Error sending server hello: %v", err)
		return
	}
	if err := s.sendMessage(client, protocol.TypeSessionState, s.currentState()); err != nil {
		log.Printf("Error sending session state: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleClientMessage(client, data)
	}
}

// readHello waits for and validates client/hello
func readHello(conn *websocket.Conn) (protocol.ClientHello, error) {
	var hello protocol.ClientHello

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return hello, fmt.Errorf("error reading hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return hello, fmt.Errorf("error unmarshaling message: %w", err)
	}
	if msg.Type != protocol.TypeClientHello {
		return hello, fmt.Errorf("expected %s, got %s", protocol.TypeClientHello, msg.Type)
	}
	if err := protocol.DecodePayload(msg.Payload, &hello); err != nil {
		return hello, err
	}
	return hello, nil
}

// writeError sends server/error directly, before the writer goroutine exists
func writeError(conn *websocket.Conn, code, message string) {
	msg := protocol.Message{
		Type:    protocol.TypeServerError,
		Payload: protocol.ServerError{Error: code, Message: message},
	}
	if data, err := json.Marshal(msg); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		conn.WriteMessage(websocket.TextMessage, data)
	}
}

// clientWriter sends queued messages to the client
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Error marshaling message: %v", err)
				continue
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Error writing text message: %v", err)
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// handleClientMessage routes responder messages
func (s *Server) handleClientMessage(client *Client, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}

	var accepted bool
	switch msg.Type {
	case protocol.TypeHeard:
		accepted = s.responder.Heard()
	case protocol.TypeNotHeard:
		accepted = s.responder.DidNotHear()
	default:
		log.Printf("Unknown message type: %s", msg.Type)
		return
	}

	log.Printf("Responder %s: %s (accepted: %v)", client.Name, msg.Type, accepted)

	ack := protocol.ResponseAck{Response: msg.Type, Accepted: accepted}
	if err := s.sendMessage(client, protocol.TypeResponseAck, ack); err != nil {
		log.Printf("Error sending ack: %v", err)
	}
}

// sendMessage queues a JSON message for a client
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	msg := protocol.Message{
		Type:    msgType,
		Payload: payload,
	}

	select {
	case client.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

func (s *Server) notifyClients(count int) {
	if s.config.OnClientsChanged != nil {
		s.config.OnClientsChanged(count)
	}
}
