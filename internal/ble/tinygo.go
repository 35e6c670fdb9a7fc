//go:build linux || darwin || windows

package ble

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter implements Adapter on tinygo-org/bluetooth (BlueZ on Linux,
// CoreBluetooth on macOS, WinRT on Windows). On macOS the peripheral
// address is a CoreBluetooth UUID, not a MAC address.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*tinyGoConnection // keyed by device address
}

// NewTinyGoAdapter creates a BLE adapter. An empty id selects the default
// adapter; a non-empty id (e.g. "hci1") is only supported on Linux.
func NewTinyGoAdapter(id string) (*TinyGoAdapter, error) {
	adapter, err := newAdapter(id)
	if err != nil {
		return nil, err
	}
	return &TinyGoAdapter{
		adapter:     adapter,
		connections: make(map[string]*tinyGoConnection),
	}, nil
}

func (a *TinyGoAdapter) Enable() error {
	a.enableOnce.Do(func() {
		if err := a.adapter.Enable(); err != nil {
			a.enableErr = err
			return
		}

		// tinygo/bluetooth reports link loss through the adapter-level
		// connect handler with connected=false.
		a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			addr := device.Address.String()
			a.mu.Lock()
			conn, ok := a.connections[addr]
			delete(a.connections, addr)
			a.mu.Unlock()
			if ok {
				conn.fireDisconnect()
			}
		})
	})
	return a.enableErr
}

func (a *TinyGoAdapter) Scan(ctx context.Context, serviceUUID string) ([]Peripheral, error) {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	var mu sync.Mutex
	var devices []Peripheral
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := a.adapter.StopScan(); err != nil {
				slog.Debug("[BLE] stop scan", "error", err)
			}
		case <-done:
		}
	}()

	err = a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(uuid) {
			return
		}
		addr := result.Address.String()
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true
		slog.Debug("[BLE] discovered", "name", result.LocalName(), "address", addr, "rssi", result.RSSI)
		devices = append(devices, Peripheral{
			Name:    result.LocalName(),
			Address: addr,
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = connectionTimeout(time.Until(deadline))
	}

	// Connect does not take a context, so wait on it in a goroutine and
	// drop a late connection if the caller has already given up.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, params)
		if err == nil && ctx.Err() != nil {
			if derr := device.Disconnect(); derr != nil {
				slog.Warn("[BLE] failed to drop late connection", "error", derr)
			}
			err = ctx.Err()
		}
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		device := result.device
		conn := &tinyGoConnection{device: &device}

		a.mu.Lock()
		a.connections[device.Address.String()] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// maxConnectionTimeout is the longest timeout a bluetooth.Duration
// (uint16 in 0.625ms units) can carry.
const maxConnectionTimeout = time.Duration(math.MaxUint16) * 625 * time.Microsecond

// connectionTimeout converts d for the platform stack, clamping instead of
// letting the uint16 wrap. The ctx deadline still bounds the full wait.
func connectionTimeout(d time.Duration) bluetooth.Duration {
	if d < 0 {
		d = 0
	}
	if d > maxConnectionTimeout {
		d = maxConnectionTimeout
	}
	return bluetooth.NewDuration(d)
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device *bluetooth.Device

	mu           sync.Mutex
	disconnectCb func()
	dropped      bool // link lost before a callback was registered
}

func (c *tinyGoConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	charUUIDParsed, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}

	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("ble: service %s not found", serviceUUID)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUIDParsed})
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("ble: characteristic %s not found", charUUID)
	}

	return &tinyGoCharacteristic{char: chars[0]}, nil
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

// OnDisconnect registers cb. If the link already dropped, cb runs at once.
func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.disconnectCb = cb
	dropped := c.dropped
	c.mu.Unlock()
	if dropped && cb != nil {
		cb()
	}
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	if cb == nil {
		c.dropped = true
	}
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinyGoCharacteristic) Write(data []byte) error {
	n, err := deviceCharacteristicWrite(c.char, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("ble: short write: %d of %d bytes", n, len(data))
	}
	return nil
}
