// ABOUTME: Tests for the remote responder server and client
// ABOUTME: Runs both ends over an httptest server
package remote

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/puretone/internal/protocol"
	"github.com/harperreed/puretone/internal/version"
	"github.com/harperreed/puretone/pkg/audiometry"
)

type fakeResponder struct {
	mu         sync.Mutex
	open       bool
	heard      int
	didNotHear int
}

func (f *fakeResponder) Heard() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return false
	}
	f.heard++
	return true
}

func (f *fakeResponder) DidNotHear() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return false
	}
	f.didNotHear++
	return true
}

func newTestServer(t *testing.T, responder Responder) (*Server, string) {
	t.Helper()
	srv := New(Config{Name: "Test", SessionID: "session-1", Frequencies: 2}, responder)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, strings.TrimPrefix(ts.URL, "http://")
}

func connectClient(t *testing.T, addr, id string) *ResponderClient {
	t.Helper()
	c := NewClient(ClientConfig{ServerAddr: addr, ClientID: id, Name: "Phone"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func waitState(t *testing.T, c *ResponderClient, state string) protocol.SessionState {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-c.States:
			if st.State == state {
				return st
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", state)
		}
	}
}

func waitClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, srv.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(ClientConfig{ServerAddr: "localhost:8928", ClientID: "c", Name: "Phone"})
	if client == nil {
		t.Fatal("expected client to be created")
	}
	if client.config.Path != protocol.Path {
		t.Errorf("expected default path %s, got %s", protocol.Path, client.config.Path)
	}
	if client.IsConnected() {
		t.Error("expected client disconnected before Connect")
	}
}

func TestHandshakeAndInitialState(t *testing.T) {
	_, addr := newTestServer(t, &fakeResponder{})
	c := connectClient(t, addr, "phone-1")

	hello := c.ServerHello()
	if hello.SessionID != "session-1" || hello.Version != protocol.ProtocolVersion {
		t.Errorf("expected session hello, got %+v", hello)
	}
	if hello.SoftwareVersion != version.Version {
		t.Errorf("expected software version %s, got %s", version.Version, hello.SoftwareVersion)
	}

	st := waitState(t, c, protocol.StateWaiting)
	if st.Total != 4 {
		t.Errorf("expected total 4 (2 frequencies x 2 ears), got %d", st.Total)
	}
}

func TestResponsesRoutedAndAcknowledged(t *testing.T) {
	responder := &fakeResponder{open: true}
	_, addr := newTestServer(t, responder)
	c := connectClient(t, addr, "phone-1")

	if err := c.SendHeard(); err != nil {
		t.Fatalf("SendHeard failed: %v", err)
	}
	select {
	case ack := <-c.Acks:
		if !ack.Accepted || ack.Response != protocol.TypeHeard {
			t.Errorf("expected accepted heard ack, got %+v", ack)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ack")
	}

	responder.mu.Lock()
	responder.open = false
	responder.mu.Unlock()

	if err := c.SendNotHeard(); err != nil {
		t.Fatalf("SendNotHeard failed: %v", err)
	}
	select {
	case ack := <-c.Acks:
		if ack.Accepted {
			t.Error("expected response outside window to be rejected")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ack")
	}

	responder.mu.Lock()
	defer responder.mu.Unlock()
	if responder.heard != 1 || responder.didNotHear != 0 {
		t.Errorf("expected 1 heard and 0 not heard, got %d / %d", responder.heard, responder.didNotHear)
	}
}

func TestPublishBroadcastsState(t *testing.T) {
	srv, addr := newTestServer(t, &fakeResponder{})
	a := connectClient(t, addr, "a")
	b := connectClient(t, addr, "b")
	waitClients(t, srv, 2)

	srv.Publish(audiometry.Event{Type: audiometry.FrequencyStarted, SessionID: "session-1", Ear: audiometry.Right, FrequencyHz: 2000})
	srv.Publish(audiometry.Event{Type: audiometry.AwaitingResponse, SessionID: "session-1"})

	for _, c := range []*ResponderClient{a, b} {
		st := waitState(t, c, protocol.StateListening)
		if st.Ear != "right" || st.FrequencyHz != 2000 {
			t.Errorf("expected right ear at 2000 Hz, got %+v", st)
		}
	}
}

func TestPublishResult(t *testing.T) {
	srv, addr := newTestServer(t, &fakeResponder{})
	c := connectClient(t, addr, "a")
	waitClients(t, srv, 1)

	result := &audiometry.Result{
		SessionID:   "session-1",
		Frequencies: []float64{1000},
		Left:        audiometry.Thresholds{1000: 20},
		Right:       audiometry.Thresholds{1000: audiometry.NoResponse},
	}
	srv.Publish(audiometry.Event{Type: audiometry.SessionCompleted, SessionID: "session-1", Result: result})

	select {
	case res := <-c.Results:
		if len(res.Left) != 1 || res.Left[0].ThresholdHL != 20 {
			t.Errorf("expected left 20 dB HL, got %+v", res.Left)
		}
		if !res.Right[0].NoResponse {
			t.Error("expected right no response")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}

	waitState(t, c, protocol.StateComplete)
}

func TestDuplicateClientRejected(t *testing.T) {
	srv, addr := newTestServer(t, &fakeResponder{})
	connectClient(t, addr, "same")
	waitClients(t, srv, 1)

	dup := NewClient(ClientConfig{ServerAddr: addr, ClientID: "same", Name: "Other"})
	if err := dup.Connect(); err == nil {
		dup.Close()
		t.Fatal("expected duplicate client ID to be rejected")
	}
	if srv.Clients() != 1 {
		t.Errorf("expected 1 client, got %d", srv.Clients())
	}
}

func TestInvalidHelloRejected(t *testing.T) {
	_, addr := newTestServer(t, &fakeResponder{})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+protocol.Path, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	hello := protocol.Message{Type: protocol.TypeClientHello, Payload: map[string]interface{}{"name": "NoID", "version": 1}}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected error message, got %v", err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Type != protocol.TypeServerError {
		t.Errorf("expected server/error, got %s", msg.Type)
	}
}

func TestClientCountCallback(t *testing.T) {
	var mu sync.Mutex
	var counts []int

	srv := New(Config{OnClientsChanged: func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}}, &fakeResponder{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	c := NewClient(ClientConfig{ServerAddr: strings.TrimPrefix(ts.URL, "http://"), ClientID: "a", Name: "A"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitClients(t, srv, 1)
	c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(counts)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 0 {
		t.Errorf("expected counts [1 0], got %v", counts)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	srv, addr := newTestServer(t, &fakeResponder{})
	c := connectClient(t, addr, "a")
	waitClients(t, srv, 1)

	srv.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected client to observe server close")
	}
}
