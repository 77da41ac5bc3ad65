package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"tinygo.org/x/bluetooth"

	"gloveterm/internal/domain"
)

// chunkSize is the largest notification-safe write payload. Nordic UART
// peripherals accept at most ATT_MTU-3 bytes per write; 20 matches the
// 23-byte default MTU every stack supports.
const chunkSize = 20

// writeInterval paces successive chunks so slow peripherals are not
// overrun.
const writeInterval = 10 * time.Millisecond

const eventBufferSize = 256

// Driver is the Bluetooth LE implementation of domain.Driver on top of the
// host adapter. A single connection is supported at a time, matching the
// session model.
type Driver struct {
	adapter *bluetooth.Adapter
	logger  *slog.Logger
	events  chan domain.DriverEvent
	limiter *rate.Limiter

	mu         sync.Mutex
	enabled    bool
	scanning   bool
	addresses  map[string]bluetooth.Address
	device     *bluetooth.Device
	deviceID   string
	notifyChar *bluetooth.DeviceCharacteristic
	writeChar  *bluetooth.DeviceCharacteristic
}

// NewDriver wraps the default host adapter.
func NewDriver(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		adapter:   bluetooth.DefaultAdapter,
		logger:    logger,
		events:    make(chan domain.DriverEvent, eventBufferSize),
		limiter:   rate.NewLimiter(rate.Every(writeInterval), 1),
		addresses: make(map[string]bluetooth.Address),
	}
}

// enable powers the adapter on once. Subsequent calls are no-ops.
func (d *Driver) enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled {
		return nil
	}
	if err := d.adapter.Enable(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	d.adapter.SetConnectHandler(d.onConnectChange)
	d.enabled = true
	return nil
}

func (d *Driver) onConnectChange(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	d.mu.Lock()
	id := d.deviceID
	current := d.device != nil && d.device.Address.String() == device.Address.String()
	d.mu.Unlock()
	if !current {
		return
	}
	d.logger.Debug("link lost", "peripheral", id)
	d.emit(domain.DisconnectEvent{ID: id})
}

// Scan runs an advertisement scan until StopScan or ctx cancellation,
// emitting a DiscoveryEvent per sighting. Every sighting is forwarded; the
// session deduplicates.
func (d *Driver) Scan(ctx context.Context, serviceFilter string) error {
	if err := d.enable(); err != nil {
		return err
	}

	filter, err := bluetooth.ParseUUID(serviceFilter)
	if err != nil {
		return fmt.Errorf("%w: parse service uuid: %v", domain.ErrScanFailed, err)
	}

	d.mu.Lock()
	if d.scanning {
		d.mu.Unlock()
		return fmt.Errorf("%w: scan already running", domain.ErrScanFailed)
	}
	d.scanning = true
	d.mu.Unlock()

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = d.adapter.StopScan()
		case <-stop:
		}
	}()

	err = d.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(filter) {
			return
		}
		id := result.Address.String()
		d.mu.Lock()
		d.addresses[id] = result.Address
		d.mu.Unlock()
		d.emit(domain.DiscoveryEvent{
			Peripheral: domain.Peripheral{
				ID:   id,
				Name: result.LocalName(),
				RSSI: int(result.RSSI),
			},
			AdvertisedServices: []string{serviceFilter},
		})
	})
	close(stop)

	d.mu.Lock()
	d.scanning = false
	d.mu.Unlock()
	d.emit(domain.ScanStoppedEvent{})

	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrScanFailed, err)
	}
	return nil
}

// StopScan ends an active scan. The blocked Scan call returns after the
// adapter drains its callback queue.
func (d *Driver) StopScan() error {
	d.mu.Lock()
	active := d.scanning
	d.mu.Unlock()
	if !active {
		return nil
	}
	return d.adapter.StopScan()
}

// Connect opens a link to a peripheral seen during a prior scan.
func (d *Driver) Connect(ctx context.Context, id string) error {
	if err := d.enable(); err != nil {
		return err
	}

	d.mu.Lock()
	addr, ok := d.addresses[id]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPeripheralNotFound, id)
	}

	device, err := d.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectFailed, err)
	}

	d.mu.Lock()
	d.device = &device
	d.deviceID = id
	d.notifyChar = nil
	d.writeChar = nil
	d.mu.Unlock()
	return nil
}

// RetrieveCatalog discovers the target service and its characteristics on
// the connected peripheral.
func (d *Driver) RetrieveCatalog(ctx context.Context, id string) (*domain.ServiceRecord, error) {
	device, err := d.currentDevice(id)
	if err != nil {
		return nil, err
	}

	svcs, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}

	record := &domain.ServiceRecord{}
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			d.logger.Debug("characteristic discovery failed", "service", svc.UUID().String(), "err", err)
			continue
		}
		if record.ServiceUUID == "" {
			record.ServiceUUID = svc.UUID().String()
		}
		for _, ch := range chars {
			record.Characteristics = append(record.Characteristics, domain.Characteristic{
				UUID: ch.UUID().String(),
			})
		}
	}
	return record, nil
}

// SubscribeNotify enables notifications on the given characteristic and
// forwards each notification as a NotifyEvent. Notification buffers are
// copied before crossing the channel; the stack reuses them.
func (d *Driver) SubscribeNotify(ctx context.Context, id, serviceUUID, charUUID string) error {
	device, err := d.currentDevice(id)
	if err != nil {
		return err
	}

	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("parse service uuid: %w", err)
	}
	notifyUUID, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return fmt.Errorf("parse notify uuid: %w", err)
	}

	svcs, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(svcs) == 0 {
		return fmt.Errorf("discover service %s: %w", serviceUUID, err)
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{notifyUUID})
	if err != nil || len(chars) == 0 {
		return fmt.Errorf("discover notify characteristic: %w", err)
	}

	char := chars[0]
	err = char.EnableNotifications(func(buf []byte) {
		data := make([]byte, len(buf))
		copy(data, buf)
		d.emit(domain.NotifyEvent{ID: id, Data: data})
	})
	if err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}

	d.mu.Lock()
	d.notifyChar = &char
	d.mu.Unlock()
	return nil
}

// Write sends data to the write characteristic in paced chunks. BLE writes
// larger than the MTU are silently truncated by some stacks, so the payload
// is always split.
func (d *Driver) Write(ctx context.Context, id, serviceUUID, charUUID string, data []byte) error {
	device, err := d.currentDevice(id)
	if err != nil {
		return err
	}

	char, err := d.writeCharacteristic(device, serviceUUID, charUUID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}

	for off := 0; off < len(data); off += chunkSize {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
		}
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := char.WriteWithoutResponse(data[off:end]); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
		}
	}
	return nil
}

// writeCharacteristic resolves and caches the write characteristic.
func (d *Driver) writeCharacteristic(device *bluetooth.Device, serviceUUID, charUUID string) (*bluetooth.DeviceCharacteristic, error) {
	d.mu.Lock()
	if d.writeChar != nil {
		char := d.writeChar
		d.mu.Unlock()
		return char, nil
	}
	d.mu.Unlock()

	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("parse service uuid: %w", err)
	}
	wUUID, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("parse write uuid: %w", err)
	}
	svcs, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(svcs) == 0 {
		return nil, fmt.Errorf("discover service: %w", err)
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{wUUID})
	if err != nil || len(chars) == 0 {
		return nil, fmt.Errorf("discover write characteristic: %w", err)
	}

	d.mu.Lock()
	d.writeChar = &chars[0]
	char := d.writeChar
	d.mu.Unlock()
	return char, nil
}

// Disconnect drops the active link. The resulting DisconnectEvent comes
// from the adapter's connect handler.
func (d *Driver) Disconnect(id string) error {
	d.mu.Lock()
	device := d.device
	current := d.deviceID == id
	if current {
		d.device = nil
		d.deviceID = ""
		d.notifyChar = nil
		d.writeChar = nil
	}
	d.mu.Unlock()

	if device == nil || !current {
		return nil
	}
	return device.Disconnect()
}

func (d *Driver) Events() <-chan domain.DriverEvent { return d.events }

func (d *Driver) currentDevice(id string) (*bluetooth.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil || d.deviceID != id {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotConnected, id)
	}
	return d.device, nil
}

// emit forwards an event to the consumer. Discovery sightings are shed
// when the buffer is full; everything else blocks, since dropping notify
// bytes would corrupt the reassembled stream.
func (d *Driver) emit(ev domain.DriverEvent) {
	if _, ok := ev.(domain.DiscoveryEvent); ok {
		select {
		case d.events <- ev:
		default:
			d.logger.Warn("event buffer full, dropping discovery sighting")
		}
		return
	}
	d.events <- ev
}

var _ domain.Driver = (*Driver)(nil)
