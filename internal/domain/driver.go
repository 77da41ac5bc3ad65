package domain

import (
	"context"
	"strings"
)

// Nordic UART Service UUIDs used by the glove firmware. The RX
// characteristic is written by the host, the TX characteristic notifies the
// host with console output.
const (
	NUSServiceUUID = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"
	NUSWriteUUID   = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E"
	NUSNotifyUUID  = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E"
)

// Driver abstracts the transport/radio stack (BLE, serial). Implementations
// translate their native callbacks into DriverEvents delivered on Events().
// Scan blocks until the scan session ends (explicit StopScan, context
// cancellation, or driver failure); discovery results arrive as
// DiscoveryEvents while it runs, followed by one ScanStoppedEvent.
type Driver interface {
	Scan(ctx context.Context, serviceFilter string) error
	StopScan() error
	Connect(ctx context.Context, id string) error
	RetrieveCatalog(ctx context.Context, id string) (*ServiceRecord, error)
	SubscribeNotify(ctx context.Context, id, serviceUUID, charUUID string) error
	Write(ctx context.Context, id, serviceUUID, charUUID string, data []byte) error
	Disconnect(id string) error
	Events() <-chan DriverEvent
}

// DriverEvent is a sealed union of asynchronous driver notifications.
type DriverEvent interface {
	driverEvent()
}

// DiscoveryEvent reports a peripheral seen during an active scan.
// AdvertisedServices is the service set from the advertisement packet, not
// the connected catalog.
type DiscoveryEvent struct {
	Peripheral         Peripheral
	AdvertisedServices []string
}

// ScanStoppedEvent reports that the scan session ended, whether or not any
// peripheral was found.
type ScanStoppedEvent struct{}

// NotifyEvent carries one notification-characteristic update. Data is owned
// by the receiver; drivers must not reuse the backing array.
type NotifyEvent struct {
	ID   string
	Data []byte
}

// DisconnectEvent reports an unsolicited disconnect for the named
// peripheral. Events for peripherals that are no longer current must be
// ignored by the consumer.
type DisconnectEvent struct {
	ID string
}

func (DiscoveryEvent) driverEvent()   {}
func (ScanStoppedEvent) driverEvent() {}
func (NotifyEvent) driverEvent()      {}
func (DisconnectEvent) driverEvent()  {}

// AdvertisesService reports whether the advertised service set contains the
// given UUID, compared case-insensitively.
func (e DiscoveryEvent) AdvertisesService(uuid string) bool {
	for _, s := range e.AdvertisedServices {
		if equalUUID(s, uuid) {
			return true
		}
	}
	return false
}

func equalUUID(a, b string) bool {
	return strings.EqualFold(a, b)
}
