package ble

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Picker chooses the peripheral to connect to from a scan result. It
// returns false when nothing acceptable was offered, which Connect reports
// as ErrNoDeviceSelected.
type Picker interface {
	Pick(ctx context.Context, candidates []Peripheral) (Peripheral, bool)
}

// PickerFunc adapts a function to the Picker interface.
type PickerFunc func(ctx context.Context, candidates []Peripheral) (Peripheral, bool)

func (f PickerFunc) Pick(ctx context.Context, candidates []Peripheral) (Peripheral, bool) {
	return f(ctx, candidates)
}

// PreferredPicker selects a peripheral by address or name when either is
// set, and otherwise the candidate with the strongest signal.
type PreferredPicker struct {
	Name    string
	Address string
}

func (p PreferredPicker) Pick(_ context.Context, candidates []Peripheral) (Peripheral, bool) {
	if p.Address != "" || p.Name != "" {
		for _, c := range candidates {
			if p.Address != "" && strings.EqualFold(c.Address, p.Address) {
				return c, true
			}
			if p.Address == "" && c.Name == p.Name {
				return c, true
			}
		}
		return Peripheral{}, false
	}

	var best Peripheral
	found := false
	for _, c := range candidates {
		if !found || c.RSSI > best.RSSI {
			best = c
			found = true
		}
	}
	return best, found
}

// ScanForDevices scans for ESP32 devices advertising the Sonic Lumina service.
func ScanForDevices(adapter Adapter, timeout time.Duration) ([]Peripheral, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPlatform, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}
