// Package serial adapts a wired serial port to the same driver contract the
// BLE transport uses, so the console works with devices attached over USB.
package serial

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.bug.st/serial"

	"gloveterm/internal/domain"
)

const eventBufferSize = 256

const readBufferSize = 512

// excludedPortWords filters out pseudo-ports the host OS exposes for its
// own Bluetooth plumbing; they hang on open.
var excludedPortWords = []string{"bluetooth", "airpods", "debug", "wlan", "iap"}

// Driver is the serial implementation of domain.Driver. Ports are presented
// as peripherals: Scan enumerates them, Connect opens one and starts a read
// pump that feeds raw bytes to the event channel.
type Driver struct {
	logger *slog.Logger
	baud   int
	events chan domain.DriverEvent

	mu     sync.Mutex
	port   serial.Port
	portID string
	closed bool
}

// NewDriver creates a serial driver. baud applies to every port it opens.
func NewDriver(baud int, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		logger: logger,
		baud:   baud,
		events: make(chan domain.DriverEvent, eventBufferSize),
	}
}

// Scan enumerates usable serial ports. Enumeration is instantaneous, so the
// call emits every port and returns without waiting for StopScan.
func (d *Driver) Scan(ctx context.Context, serviceFilter string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("%w: list ports: %v", domain.ErrScanFailed, err)
	}

	for _, name := range ports {
		if excludedPort(name) {
			continue
		}
		d.events <- domain.DiscoveryEvent{
			Peripheral: domain.Peripheral{
				ID:   name,
				Name: name,
			},
			// A wired port cannot advertise; claim the target service so
			// the session's filter passes.
			AdvertisedServices: []string{serviceFilter},
		}
	}
	d.events <- domain.ScanStoppedEvent{}
	return nil
}

func excludedPort(name string) bool {
	lower := strings.ToLower(name)
	for _, word := range excludedPortWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// StopScan is a no-op; serial enumeration completes synchronously.
func (d *Driver) StopScan() error { return nil }

// Connect opens the port and starts the read pump.
func (d *Driver) Connect(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port != nil {
		return fmt.Errorf("%w: port %s already open", domain.ErrConnectFailed, d.portID)
	}

	port, err := serial.Open(id, &serial.Mode{BaudRate: d.baud})
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrConnectFailed, id, err)
	}
	d.port = port
	d.portID = id
	d.closed = false
	go d.readPump(port, id)

	d.logger.Info("serial port opened", "port", id, "baud", d.baud)
	return nil
}

// readPump forwards raw reads until the port errors or is closed.
func (d *Driver) readPump(port serial.Port, id string) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			d.events <- domain.NotifyEvent{ID: id, Data: data}
		}
		if err != nil {
			d.mu.Lock()
			expected := d.closed
			d.mu.Unlock()
			if !expected {
				d.logger.Warn("serial read failed", "port", id, "err", err)
			}
			d.events <- domain.DisconnectEvent{ID: id}
			return
		}
	}
}

// RetrieveCatalog synthesizes a catalog; a wired port has no services to
// discover but the session expects one.
func (d *Driver) RetrieveCatalog(ctx context.Context, id string) (*domain.ServiceRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil || d.portID != id {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotConnected, id)
	}
	return &domain.ServiceRecord{
		ServiceUUID: domain.NUSServiceUUID,
		Characteristics: []domain.Characteristic{
			{UUID: domain.NUSNotifyUUID, Notify: true},
			{UUID: domain.NUSWriteUUID, Write: true},
		},
	}, nil
}

// SubscribeNotify is a no-op; the read pump already delivers everything the
// port produces.
func (d *Driver) SubscribeNotify(ctx context.Context, id, serviceUUID, charUUID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil || d.portID != id {
		return fmt.Errorf("%w: %s", domain.ErrNotConnected, id)
	}
	return nil
}

// Write sends the payload in one call; serial ports have no MTU to respect.
func (d *Driver) Write(ctx context.Context, id, serviceUUID, charUUID string, data []byte) error {
	d.mu.Lock()
	port := d.port
	current := d.portID == id
	d.mu.Unlock()
	if port == nil || !current {
		return fmt.Errorf("%w: %s", domain.ErrNotConnected, id)
	}
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}
	return nil
}

// Disconnect closes the port. The read pump notices and emits the
// DisconnectEvent.
func (d *Driver) Disconnect(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil || d.portID != id {
		return nil
	}
	d.closed = true
	err := d.port.Close()
	d.port = nil
	d.portID = ""
	return err
}

func (d *Driver) Events() <-chan domain.DriverEvent { return d.events }

var _ domain.Driver = (*Driver)(nil)
