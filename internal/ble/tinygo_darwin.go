package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return nil, fmt.Errorf("ble: adapter id %q: selecting an adapter is not supported on macOS", id)
	}
	return bluetooth.DefaultAdapter, nil
}

var deviceCharacteristicWrite = bluetooth.DeviceCharacteristic.Write

// parseAddress parses the CoreBluetooth peripheral UUID reported by Scan.
func parseAddress(address string) (bluetooth.Address, error) {
	uuid, err := bluetooth.ParseUUID(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: parse peripheral UUID %q: %w", address, err)
	}
	return bluetooth.Address{UUID: uuid}, nil
}
