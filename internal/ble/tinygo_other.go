//go:build !linux && !darwin && !windows

package ble

import "context"

// TinyGoAdapter is unavailable on this platform; every call reports
// ErrUnsupportedPlatform.
type TinyGoAdapter struct{}

// NewTinyGoAdapter always fails on platforms without a BLE host stack.
func NewTinyGoAdapter(id string) (*TinyGoAdapter, error) {
	return nil, ErrUnsupportedPlatform
}

func (a *TinyGoAdapter) Enable() error { return ErrUnsupportedPlatform }

func (a *TinyGoAdapter) Scan(context.Context, string) ([]Peripheral, error) {
	return nil, ErrUnsupportedPlatform
}

func (a *TinyGoAdapter) Connect(context.Context, string) (Connection, error) {
	return nil, ErrUnsupportedPlatform
}
