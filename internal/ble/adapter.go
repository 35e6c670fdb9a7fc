// Package ble provides the BLE session for an ESP32 running Sonic Lumina
// firmware. It handles discovery, connection management, characteristic
// resolution and writes to the LED and note sequence characteristics.
package ble

import "context"

// Sonic Lumina BLE UUIDs
const (
	ServiceUUID   = "19b10000-e8f2-537e-4f6c-d104768a1214"
	LEDCharUUID   = "19b10001-e8f2-537e-4f6c-d104768a1214"
	NotesCharUUID = "19b10002-e8f2-537e-4f6c-d104768a1214"
)

// Characteristic represents a writable BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic and returns once the
	// transport has accepted it.
	Write(data []byte) error
}

// Peripheral identifies a discovered BLE device. Address is assigned by the
// platform (a MAC on Linux/Windows, a CoreBluetooth UUID on macOS) and is
// only meaningful for the adapter that reported it.
type Peripheral struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals advertising the given service UUID.
	// Returns discovered devices once ctx is cancelled or times out.
	Scan(ctx context.Context, serviceUUID string) ([]Peripheral, error)
	// Connect establishes a connection to the peripheral with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
