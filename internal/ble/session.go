package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event describes a state transition. Cause is set when the transition was
// forced: the connect error for CONNECTING→DISCONNECTED, or
// ErrPeerDisconnected when the peripheral dropped the link.
type Event struct {
	SessionID  string
	From       State
	To         State
	Cause      error
	Peripheral Peripheral
}

// SessionOptions configures discovery and connection behavior.
type SessionOptions struct {
	ScanTimeout    time.Duration // how long to collect advertisements before picking
	ConnectTimeout time.Duration // overall deadline for scan + GATT handshake
	Picker         Picker        // chooses among scan results (default: strongest RSSI)
	EventBuffer    int           // capacity of the Events channel
}

// DefaultSessionOptions returns sensible defaults for production use.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ScanTimeout:    5 * time.Second,
		ConnectTimeout: 20 * time.Second,
		Picker:         PreferredPicker{},
		EventBuffer:    16,
	}
}

// Session owns the connection to a single Sonic Lumina peripheral.
//
// Connect, Disconnect and the writes are serialized in call order. A peer
// disconnect does not wait for them: it takes only the state lock and
// clears the handles at once, so a queued write then fails with
// ErrNotConnected.
type Session struct {
	adapter Adapter
	opts    SessionOptions

	opMu sync.Mutex

	// mu guards the fields below. The characteristic handles are non-nil
	// exactly when state is StateConnected.
	mu         sync.Mutex
	state      State
	id         string
	peripheral Peripheral
	conn       Connection
	ledChar    Characteristic
	notesChar  Characteristic

	events chan Event
}

// NewSession creates a disconnected session. A nil adapter is allowed and
// makes every Connect fail with ErrUnsupportedPlatform.
func NewSession(adapter Adapter, opts SessionOptions) *Session {
	def := DefaultSessionOptions()
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = def.ScanTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.Picker == nil {
		opts.Picker = def.Picker
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	return &Session{
		adapter: adapter,
		opts:    opts,
		events:  make(chan Event, opts.EventBuffer),
	}
}

// Events returns the channel that receives state transitions. Events are
// dropped rather than blocking the session when nobody drains it.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peripheral returns the connected peripheral, if any.
func (s *Session) Peripheral() (Peripheral, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peripheral, s.state == StateConnected
}

// ID returns the identifier of the current connection, or "" when
// disconnected.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Connect discovers a peripheral, connects to it and resolves the LED and
// notes characteristics. Every call starts a fresh discovery; there is no
// cached-device reconnect.
func (s *Session) Connect(ctx context.Context) (Peripheral, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return Peripheral{}, ErrAlreadyConnected
	}
	s.setStateLocked(StateConnecting, nil, Peripheral{})
	s.mu.Unlock()

	p, l, ledChar, notesChar, err := s.handshake(ctx)
	if err != nil {
		slog.Warn("[BLE] connect failed", "error", err)
		s.mu.Lock()
		s.setStateLocked(StateDisconnected, err, p)
		s.mu.Unlock()
		return Peripheral{}, err
	}

	id := uuid.NewString()
	s.mu.Lock()
	// A drop after this check reaches handlePeerDisconnect once mu is
	// released, because s.conn will match.
	if l.dropped.Load() {
		err := fmt.Errorf("%w: %s: %w", ErrConnectFailed, p.Address, ErrPeerDisconnected)
		s.setStateLocked(StateDisconnected, err, p)
		s.mu.Unlock()
		_ = l.conn.Disconnect()
		slog.Warn("[BLE] link dropped during setup", "address", p.Address)
		return Peripheral{}, err
	}
	s.id = id
	s.peripheral = p
	s.conn = l.conn
	s.ledChar = ledChar
	s.notesChar = notesChar
	s.setStateLocked(StateConnected, nil, p)
	s.mu.Unlock()

	slog.Info("[BLE] connected", "name", p.Name, "address", p.Address, "session", id)
	return p, nil
}

// link is a connection still being set up. dropped records a peer drop
// that arrived before the session owned the connection.
type link struct {
	conn    Connection
	dropped atomic.Bool
}

// handshake runs discovery and GATT resolution without touching session state.
func (s *Session) handshake(ctx context.Context) (Peripheral, *link, Characteristic, Characteristic, error) {
	var none Peripheral
	if s.adapter == nil {
		return none, nil, nil, nil, ErrUnsupportedPlatform
	}
	if err := s.adapter.Enable(); err != nil {
		return none, nil, nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedPlatform, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	slog.Debug("[BLE] scanning", "service", ServiceUUID, "timeout", s.opts.ScanTimeout)
	scanCtx, cancelScan := context.WithTimeout(ctx, s.opts.ScanTimeout)
	candidates, err := s.adapter.Scan(scanCtx, ServiceUUID)
	cancelScan()
	if ctx.Err() != nil {
		return none, nil, nil, nil, connectCtxErr(ctx)
	}
	if err != nil {
		return none, nil, nil, nil, fmt.Errorf("%w: scan: %v", ErrNoDeviceSelected, err)
	}

	p, ok := s.opts.Picker.Pick(ctx, candidates)
	if !ok {
		if ctx.Err() != nil {
			return none, nil, nil, nil, connectCtxErr(ctx)
		}
		return none, nil, nil, nil, fmt.Errorf("%w: %d candidates found", ErrNoDeviceSelected, len(candidates))
	}

	slog.Debug("[BLE] connecting", "name", p.Name, "address", p.Address, "rssi", p.RSSI)
	conn, err := s.adapter.Connect(ctx, p.Address)
	if err != nil {
		if ctx.Err() != nil {
			return p, nil, nil, nil, connectCtxErr(ctx)
		}
		return p, nil, nil, nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, p.Address, err)
	}

	l := &link{conn: conn}
	conn.OnDisconnect(func() {
		l.dropped.Store(true)
		s.handlePeerDisconnect(conn)
	})

	ledChar, err := conn.DiscoverCharacteristic(ServiceUUID, LEDCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return p, nil, nil, nil, fmt.Errorf("%w: LED characteristic: %v", ErrServiceUnavailable, err)
	}
	notesChar, err := conn.DiscoverCharacteristic(ServiceUUID, NotesCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return p, nil, nil, nil, fmt.Errorf("%w: notes characteristic: %v", ErrServiceUnavailable, err)
	}

	if ctx.Err() != nil {
		_ = conn.Disconnect()
		return p, nil, nil, nil, connectCtxErr(ctx)
	}
	return p, l, ledChar, notesChar, nil
}

// connectCtxErr maps an expired connect context to a session error.
func connectCtxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrConnectionTimeout
	}
	return fmt.Errorf("ble: connect: %w", ctx.Err())
}

// Disconnect clears the session and asks the link to tear down. It is a
// no-op when already disconnected.
func (s *Session) Disconnect() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	id := s.id
	s.clearLocked(nil)
	s.mu.Unlock()

	slog.Info("[BLE] disconnecting", "session", id)
	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect: %w", err)
	}
	return nil
}

// handlePeerDisconnect is registered on each connection. Callbacks from a
// connection the session no longer holds are ignored.
func (s *Session) handlePeerDisconnect(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.conn != conn {
		return
	}
	slog.Warn("[BLE] peer disconnected", "session", s.id, "address", s.peripheral.Address)
	s.clearLocked(ErrPeerDisconnected)
}

// clearLocked drops all handles and moves to StateDisconnected in one step
// (caller must hold mu).
func (s *Session) clearLocked(cause error) {
	p := s.peripheral
	s.conn = nil
	s.ledChar = nil
	s.notesChar = nil
	s.peripheral = Peripheral{}
	s.setStateLocked(StateDisconnected, cause, p)
	s.id = ""
}

// setStateLocked records a transition and publishes it (caller must hold mu).
func (s *Session) setStateLocked(to State, cause error, p Peripheral) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	ev := Event{SessionID: s.id, From: from, To: to, Cause: cause, Peripheral: p}
	select {
	case s.events <- ev:
	default:
		slog.Warn("[BLE] event buffer full, dropping transition", "from", from, "to", to)
	}
}

// WriteLED writes an encoded color payload to the LED characteristic.
func (s *Session) WriteLED(ctx context.Context, data []byte) error {
	return s.write(ctx, "LED", data, func() Characteristic { return s.ledChar })
}

// WriteNotes writes an encoded sequence payload to the notes characteristic.
func (s *Session) WriteNotes(ctx context.Context, data []byte) error {
	return s.write(ctx, "notes", data, func() Characteristic { return s.notesChar })
}

// write performs one characteristic write. A failed write leaves the
// session connected.
func (s *Session) write(ctx context.Context, name string, data []byte, handle func() Characteristic) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	char := handle()
	s.mu.Unlock()
	if char == nil {
		return ErrNotConnected
	}

	if err := char.Write(data); err != nil {
		slog.Warn("[BLE] write failed", "characteristic", name, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrTransportWriteFailed, name, err)
	}
	slog.Debug("[BLE] wrote", "characteristic", name, "bytes", len(data))
	return nil
}
