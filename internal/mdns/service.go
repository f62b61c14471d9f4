// Package mdns advertises the ledger server on the local network through
// the Avahi daemon.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"

	"github.com/libraryledger/ledger-server/internal/logger"
)

const (
	// ServiceType is the DNS-SD service type for ledger servers.
	ServiceType = "_libraryledger._tcp"

	// APIVersion is the API version advertised in TXT records.
	APIVersion = "v1"

	// ServerVersion is the server version advertised in TXT records.
	ServerVersion = "1.0.0"
)

// Advertisement describes what is published.
type Advertisement struct {
	Name string
	Port int
	// RemoteURL is advertised when the server is also reachable off-LAN.
	RemoteURL string
}

// TXTRecords builds the TXT payload for an advertisement.
func (a Advertisement) TXTRecords() [][]byte {
	records := [][]byte{
		[]byte("name=" + a.Name),
		[]byte("version=" + ServerVersion),
		[]byte("api=" + APIVersion),
		[]byte("path=/api/v1"),
	}
	if a.RemoteURL != "" {
		records = append(records, []byte("remote="+a.RemoteURL))
	}
	return records
}

func (a Advertisement) validate() error {
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("invalid port %d", a.Port)
	}
	return nil
}

// Service publishes one Avahi entry group for the server.
type Service struct {
	logger *slog.Logger

	mu     sync.Mutex
	server *avahi.Server
	group  *avahi.EntryGroup
}

// NewService creates an idle advertiser.
func NewService(log *slog.Logger) *Service {
	return &Service{logger: logger.OrDiscard(log).With("component", "mdns")}
}

// Start publishes ad. Calling it again replaces the previous entry.
// Errors are usually environmental (no system bus, no avahi-daemon) and
// the caller may carry on without discovery.
func (s *Service) Start(ad Advertisement) error {
	if err := ad.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}

	server, err := avahi.ServerNew(conn)
	if err != nil {
		return fmt.Errorf("connect avahi: %w", err)
	}

	group, err := server.EntryGroupNew()
	if err != nil {
		server.Close()
		return fmt.Errorf("create entry group: %w", err)
	}

	name := ad.Name
	if name == "" {
		name, _ = os.Hostname()
	}

	err = group.AddService(
		avahi.InterfaceUnspec,
		avahi.ProtoUnspec,
		0,
		name,
		ServiceType,
		"local",
		"",
		uint16(ad.Port),
		ad.TXTRecords(),
	)
	if err != nil {
		server.EntryGroupFree(group)
		server.Close()
		return fmt.Errorf("add service: %w", err)
	}

	if err := group.Commit(); err != nil {
		server.EntryGroupFree(group)
		server.Close()
		return fmt.Errorf("commit entry group: %w", err)
	}

	s.server = server
	s.group = group

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"name", name,
		"port", ad.Port,
	)
	return nil
}

// Running reports whether an entry is published.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group != nil
}

// Stop withdraws the advertisement. Safe to call repeatedly.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		s.stopLocked()
		s.logger.Info("mDNS advertisement stopped")
	}
}

func (s *Service) stopLocked() {
	if s.group != nil {
		if err := s.group.Reset(); err != nil {
			s.logger.Debug("reset entry group", "error", err)
		}
		s.server.EntryGroupFree(s.group)
		s.group = nil
	}
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
}
