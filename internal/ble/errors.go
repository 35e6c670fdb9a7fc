package ble

import "errors"

var (
	// ErrUnsupportedPlatform means the host has no usable BLE adapter.
	ErrUnsupportedPlatform = errors.New("ble: bluetooth is not supported on this host")
	// ErrNoDeviceSelected means discovery produced no peripheral to connect to.
	ErrNoDeviceSelected = errors.New("ble: no device selected")
	// ErrConnectFailed means the GATT connection could not be established.
	ErrConnectFailed = errors.New("ble: connect failed")
	// ErrServiceUnavailable means the peripheral lacks the Sonic Lumina
	// service or one of its characteristics.
	ErrServiceUnavailable = errors.New("ble: service unavailable on peripheral")
	// ErrConnectionTimeout means discovery or the GATT handshake did not
	// finish before the connect deadline.
	ErrConnectionTimeout = errors.New("ble: connection timed out")
	// ErrAlreadyConnected is returned by Connect on a connected session.
	ErrAlreadyConnected = errors.New("ble: already connected")
	// ErrNotConnected means a write was attempted without an active session.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrTransportWriteFailed wraps a failed characteristic write. The
	// session stays connected and the write may be retried.
	ErrTransportWriteFailed = errors.New("ble: characteristic write failed")
	// ErrPeerDisconnected is the Cause of the event emitted when the
	// peripheral drops the link.
	ErrPeerDisconnected = errors.New("ble: peer disconnected")
)
