// ABOUTME: mDNS service discovery for remote responders
// ABOUTME: Test sessions advertise themselves and responders browse for them
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/harperreed/puretone/internal/protocol"
	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service advertised by test sessions
const ServiceType = "_puretone._tcp"

// DefaultBrowseInterval is how long each browse query listens
const DefaultBrowseInterval = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName    string
	Port           int
	SessionID      string
	BrowseInterval time.Duration
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered test session
type ServerInfo struct {
	Name      string
	Host      string
	Port      int
	Path      string
	SessionID string
}

// Address returns host:port for dialing
func (s *ServerInfo) Address() string {
	return net.JoinHostPort(s.Host, fmt.Sprintf("%d", s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.BrowseInterval <= 0 {
		config.BrowseInterval = DefaultBrowseInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise announces this test session via mDNS
func (m *Manager) Advertise() error {
	ips, err := advertiseIPs()
	if err != nil {
		return err
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config.SessionID),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for test sessions until Stop is called
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for sessions
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				server, ok := serverFromEntry(entry)
				if !ok {
					continue
				}

				log.Printf("Discovered session: %s at %s", server.Name, server.Address())

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = m.config.BrowseInterval
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
		<-done

		// Pause between queries
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Servers returns the channel of discovered sessions
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

func txtRecords(sessionID string) []string {
	txt := []string{"path=" + protocol.Path}
	if sessionID != "" {
		txt = append(txt, "session="+sessionID)
	}
	return txt
}

// serverFromEntry converts a browse result, skipping entries for other services
func serverFromEntry(entry *mdns.ServiceEntry) (*ServerInfo, bool) {
	if entry == nil || !strings.Contains(entry.Name, ServiceType) {
		return nil, false
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil, false
	}

	info := &ServerInfo{
		Name: instanceName(entry.Name),
		Host: host,
		Port: entry.Port,
		Path: protocol.Path,
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			info.Path = value
		case "session":
			info.SessionID = value
		}
	}
	return info, true
}

// instanceName strips the service and domain suffix
func instanceName(full string) string {
	if i := strings.Index(full, "."+ServiceType); i > 0 {
		return strings.ReplaceAll(full[:i], `\ `, " ")
	}
	return full
}

// advertiseIPs lists the IPv4 addresses of interfaces that are up, excluding loopback
func advertiseIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			log.Printf("Skipping interface %s: %v", iface.Name, err)
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				ips = append(ips, ip4)
			}
		}
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("no usable network address")
	}
	return ips, nil
}
