// Package mdns advertises the Lutrin daemon on the local network so reader
// clients can find it without configuration.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the mDNS service type for Lutrin daemons.
	ServiceType = "_lutrin._tcp"

	// APIVersion is the current API version advertised in TXT records.
	APIVersion = "v1"
)

// Advertisement describes the daemon being advertised.
type Advertisement struct {
	ID      string // Stable instance id
	Name    string // Human-readable server name
	Version string // Daemon version
	Port    int
}

// txtRecords builds the TXT records clients read before connecting.
func (a Advertisement) txtRecords() []string {
	return []string{
		"id=" + a.ID,
		"name=" + a.Name,
		"version=" + a.Version,
		"api=" + APIVersion,
	}
}

// Service manages mDNS advertisement.
type Service struct {
	server *mdns.Server
	logger *slog.Logger
	mu     sync.Mutex
}

// NewService creates a stopped mDNS service.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger: logger,
	}
}

// Start begins advertising. It should be called once the HTTP server
// listens. Calling it again restarts the advertisement.
//
// Errors are usually non-fatal: multicast is often unavailable in
// containers.
func (s *Service) Start(ad Advertisement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
	}

	host, err := os.Hostname()
	if err != nil {
		host = "lutrin"
	}

	zone, err := mdns.NewMDNSService(
		host,        // Instance name
		ServiceType, // Service type
		"",          // Domain (empty = .local)
		"",          // Host (empty = system hostname)
		ad.Port,
		nil, // IPs (nil = all interfaces)
		ad.txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("start mDNS server: %w", err)
	}
	s.server = server

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"port", ad.Port,
		"name", ad.Name,
		"id", ad.ID,
	)
	return nil
}

// Running reports whether the daemon is being advertised.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

// Stop stops advertising. Safe to call multiple times or if not started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
		s.logger.Info("mDNS advertisement stopped")
	}
}

// Shutdown implements do.Shutdowner.
func (s *Service) Shutdown() error {
	s.Stop()
	return nil
}
