package domain

// Peripheral is a discoverable/connectable remote device. Identity is ID:
// two discovery events carrying the same ID refer to the same physical
// device. Services is populated only once the peripheral is connected and
// its catalog has been retrieved.
type Peripheral struct {
	ID       string
	Name     string
	RSSI     int
	Services *ServiceRecord
}

// ServiceRecord is the service/characteristic catalog of a connected
// peripheral.
type ServiceRecord struct {
	ServiceUUID     string
	Characteristics []Characteristic
}

// Characteristic describes one GATT characteristic in a ServiceRecord.
type Characteristic struct {
	UUID   string
	Notify bool
	Write  bool
}

// HasCharacteristic reports whether the record contains a characteristic
// with the given UUID (case-insensitive).
func (r *ServiceRecord) HasCharacteristic(uuid string) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Characteristics {
		if equalUUID(c.UUID, uuid) {
			return true
		}
	}
	return false
}
