package control

import (
	"errors"
	"fmt"

	"github.com/chaz8081/sonic-lumina/internal/ble"
)

// Kind classifies controller failures independently of the BLE stack.
type Kind int

const (
	KindUnsupportedPlatform Kind = iota + 1
	KindNoDeviceSelected
	KindServiceUnavailable
	KindConnectFailed
	KindConnectionTimeout
	KindNotConnected
	KindTransportWriteFailed
	KindColorWriteFailed
	KindInvalidSequence
)

var kindNames = map[Kind]string{
	KindUnsupportedPlatform:  "UnsupportedPlatform",
	KindNoDeviceSelected:     "NoDeviceSelected",
	KindServiceUnavailable:   "ServiceUnavailable",
	KindConnectFailed:        "ConnectFailed",
	KindConnectionTimeout:    "ConnectionTimeout",
	KindNotConnected:         "NotConnected",
	KindTransportWriteFailed: "TransportWriteFailed",
	KindColorWriteFailed:     "ColorWriteFailed",
	KindInvalidSequence:      "InvalidSequence",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by every Controller operation that fails.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of a controller error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// normalize maps a session error onto the controller taxonomy. fallback is
// used for errors the session does not classify.
func normalize(err error, fallback Kind) *Error {
	var kind Kind
	switch {
	case errors.Is(err, ble.ErrUnsupportedPlatform):
		kind = KindUnsupportedPlatform
	case errors.Is(err, ble.ErrNoDeviceSelected):
		kind = KindNoDeviceSelected
	case errors.Is(err, ble.ErrServiceUnavailable):
		kind = KindServiceUnavailable
	case errors.Is(err, ble.ErrConnectionTimeout):
		kind = KindConnectionTimeout
	case errors.Is(err, ble.ErrConnectFailed):
		kind = KindConnectFailed
	case errors.Is(err, ble.ErrNotConnected):
		kind = KindNotConnected
	case errors.Is(err, ble.ErrTransportWriteFailed):
		kind = KindTransportWriteFailed
	default:
		kind = fallback
	}
	return &Error{Kind: kind, Err: err}
}
