package ble

import (
	"context"
	"sync"

	"gloveterm/internal/domain"
)

// MockDriver is an in-memory domain.Driver for tests. Peripherals are
// staged with AddPeripheral; Scan replays them as discovery events and then
// blocks until StopScan, EndScan or ctx cancellation. Notifications and
// disconnects are injected with EmitNotify and EmitDisconnect.
type MockDriver struct {
	mu          sync.Mutex
	peripherals []stagedPeripheral
	connected   map[string]bool
	writes      []MockWrite
	subscribed  map[string]string // peripheral id -> char uuid

	events   chan domain.DriverEvent
	scanStop chan struct{}
	scanning bool

	ScanErr      error
	ConnectErr   error
	CatalogErr   error
	SubscribeErr error
	WriteErr     error
}

type stagedPeripheral struct {
	p        domain.Peripheral
	services []string
	repeat   int // extra discovery events for the same peripheral
}

// MockWrite records one Write call.
type MockWrite struct {
	ID       string
	CharUUID string
	Data     []byte
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		connected:  make(map[string]bool),
		subscribed: make(map[string]string),
		events:     make(chan domain.DriverEvent, 64),
	}
}

// AddPeripheral stages a peripheral to be reported by the next Scan.
// repeat > 0 makes the scan report it that many additional times, the way
// real radios re-report advertisers.
func (m *MockDriver) AddPeripheral(p domain.Peripheral, services []string, repeat int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peripherals = append(m.peripherals, stagedPeripheral{p: p, services: services, repeat: repeat})
}

func (m *MockDriver) Scan(ctx context.Context, serviceFilter string) error {
	m.mu.Lock()
	if m.ScanErr != nil {
		err := m.ScanErr
		m.mu.Unlock()
		return err
	}
	stop := make(chan struct{})
	m.scanStop = stop
	m.scanning = true
	staged := make([]stagedPeripheral, len(m.peripherals))
	copy(staged, m.peripherals)
	m.mu.Unlock()

	for _, sp := range staged {
		for i := 0; i <= sp.repeat; i++ {
			m.events <- domain.DiscoveryEvent{Peripheral: sp.p, AdvertisedServices: sp.services}
		}
	}

	select {
	case <-stop:
	case <-ctx.Done():
	}

	m.mu.Lock()
	m.scanning = false
	m.scanStop = nil
	m.mu.Unlock()
	m.events <- domain.ScanStoppedEvent{}
	return nil
}

func (m *MockDriver) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanStop != nil {
		close(m.scanStop)
		m.scanStop = nil
	}
	return nil
}

// EndScan is StopScan under a test-intent name.
func (m *MockDriver) EndScan() { _ = m.StopScan() }

func (m *MockDriver) Connect(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected[id] = true
	return nil
}

func (m *MockDriver) RetrieveCatalog(ctx context.Context, id string) (*domain.ServiceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	return &domain.ServiceRecord{
		ServiceUUID: domain.NUSServiceUUID,
		Characteristics: []domain.Characteristic{
			{UUID: domain.NUSNotifyUUID, Notify: true},
			{UUID: domain.NUSWriteUUID, Write: true},
		},
	}, nil
}

func (m *MockDriver) SubscribeNotify(ctx context.Context, id, serviceUUID, charUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return m.SubscribeErr
	}
	m.subscribed[id] = charUUID
	return nil
}

func (m *MockDriver) Write(ctx context.Context, id, serviceUUID, charUUID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.writes = append(m.writes, MockWrite{ID: id, CharUUID: charUUID, Data: cp})
	return nil
}

func (m *MockDriver) Disconnect(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connected, id)
	delete(m.subscribed, id)
	return nil
}

func (m *MockDriver) Events() <-chan domain.DriverEvent { return m.events }

// EmitNotify injects received bytes from a peripheral.
func (m *MockDriver) EmitNotify(id string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.events <- domain.NotifyEvent{ID: id, Data: cp}
}

// EmitDisconnect injects a link-loss event.
func (m *MockDriver) EmitDisconnect(id string) {
	m.events <- domain.DisconnectEvent{ID: id}
}

// Writes returns a copy of all recorded writes.
func (m *MockDriver) Writes() []MockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// IsConnected reports whether Connect was called without a later Disconnect.
func (m *MockDriver) IsConnected(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected[id]
}

// SubscribedChar returns the characteristic the peripheral is subscribed
// on, or "".
func (m *MockDriver) SubscribedChar(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed[id]
}

var _ domain.Driver = (*MockDriver)(nil)
