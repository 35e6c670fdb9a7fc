package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return nil, fmt.Errorf("ble: adapter id %q: selecting an adapter is not supported on Windows", id)
	}
	return bluetooth.DefaultAdapter, nil
}

// WinRT rejects WriteWithoutResponse unless the characteristic advertises
// it; the firmware only offers acknowledged writes.
var deviceCharacteristicWrite = bluetooth.DeviceCharacteristic.Write

func parseAddress(address string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: parse MAC address %q: %w", address, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}
