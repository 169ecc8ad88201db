// Package mdns advertises the controller host on the local network so a
// phone or lobby display can find it without typing an address.
//
// The advertisement uses service type _opencontroller._tcp with TXT records
// carrying the protocol version, host name and slot count.
package mdns

import (
	"fmt"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/opencontroller/backend/internal/model"
)

// ServiceType is the DNS-SD service type.
const ServiceType = "_opencontroller._tcp"

// ProtocolVersion identifies the websocket protocol version.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the HTTP port to advertise.
	Port int

	// Name is the instance name. Defaults to the system hostname.
	Name string
}

// Advertiser manages the DNS-SD registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates an advertiser for cfg.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg}
}

// InstanceName returns the name that will be advertised.
func (a *Advertiser) InstanceName() string {
	if a.config.Name != "" {
		return a.config.Name
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "opencontroller"
	}
	return hostname
}

// TXTRecords returns the TXT records published with the service.
func (a *Advertiser) TXTRecords() []string {
	return []string{
		fmt.Sprintf("version=%s", ProtocolVersion),
		fmt.Sprintf("name=%s", a.InstanceName()),
		fmt.Sprintf("slots=%d", model.MaxSlots),
	}
}

// Start registers the service. Calling Start while running is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}
	if a.config.Port <= 0 {
		return fmt.Errorf("mdns register: invalid port %d", a.config.Port)
	}

	server, err := zeroconf.Register(
		a.InstanceName(),
		ServiceType,
		"local.",
		a.config.Port,
		a.TXTRecords(),
		nil,
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop unregisters the service. It is safe to call on a stopped advertiser.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning reports whether the service is registered.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}
