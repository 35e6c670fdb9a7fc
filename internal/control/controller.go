// Package control is the single entry point front-ends use to drive the
// peripheral: connect, pick a color, upload a note sequence and observe
// connection status.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/sonic-lumina/internal/ble"
	"github.com/chaz8081/sonic-lumina/internal/ble/protocol"
)

// Device is the session surface the controller drives. *ble.Session
// implements it.
type Device interface {
	Connect(ctx context.Context) (ble.Peripheral, error)
	Disconnect() error
	WriteLED(ctx context.Context, data []byte) error
	WriteNotes(ctx context.Context, data []byte) error
	State() ble.State
	Events() <-chan ble.Event
}

// Compile-time check that *ble.Session satisfies Device.
var _ Device = (*ble.Session)(nil)

// State is the connection status shown to the user. StateError is held for
// Options.ErrorGrace after a failed connect, then reverts to
// StateDisconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of what the front-end should render.
//
// DisplayColor changes as soon as the user picks a color; ConfirmedColor
// only after the peripheral accepted the write.
type Status struct {
	State          State
	LastError      string
	Peripheral     ble.Peripheral
	DisplayColor   string
	ConfirmedColor string
}

// Options configures the controller.
type Options struct {
	ErrorGrace   time.Duration // how long a connect failure stays visible
	InitialColor string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		ErrorGrace:   4 * time.Second,
		InitialColor: "Red",
	}
}

// Controller wraps a Device with status tracking and error normalization.
// Construct one per device with New and release it with Close.
type Controller struct {
	dev  Device
	opts Options

	mu       sync.Mutex
	status   Status
	graceGen int
	grace    *time.Timer
	subs     map[int]chan Status
	nextSub  int
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a controller and starts consuming the device's events.
func New(dev Device, opts Options) *Controller {
	if opts.ErrorGrace <= 0 {
		opts.ErrorGrace = DefaultOptions().ErrorGrace
	}
	c := &Controller{
		dev:  dev,
		opts: opts,
		status: Status{
			State:        StateDisconnected,
			DisplayColor: opts.InitialColor,
		},
		subs: make(map[int]chan Status),
		done: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.pump()
	return c
}

// pump reacts to transitions the controller did not initiate.
func (c *Controller) pump() {
	defer c.wg.Done()
	events := c.dev.Events()
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.To == ble.StateDisconnected && errors.Is(ev.Cause, ble.ErrPeerDisconnected) {
				c.mu.Lock()
				// The drop belongs to an earlier session if a reconnect
				// has already completed.
				if c.dev.State() == ble.StateConnected {
					c.mu.Unlock()
					slog.Debug("[CTRL] ignoring stale disconnect", "session", ev.SessionID)
					continue
				}
				slog.Warn("[CTRL] device disconnected", "name", ev.Peripheral.Name, "session", ev.SessionID)
				c.status.State = StateDisconnected
				c.status.Peripheral = ble.Peripheral{}
				c.status.ConfirmedColor = ""
				c.status.LastError = ev.Cause.Error()
				c.publishLocked()
				c.mu.Unlock()
			}
		}
	}
}

// Status returns the current status snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connected reports whether the device session is live.
func (c *Controller) Connected() bool {
	return c.dev.State() == ble.StateConnected
}

// Subscribe returns a channel that receives a Status after every change and
// a function that ends the subscription. Slow readers only see the latest
// status.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Status, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.status

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// publishLocked fans the current status out to subscribers, replacing any
// unread value (caller must hold mu).
func (c *Controller) publishLocked() {
	st := c.status
	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// Connect runs a fresh discovery and connects to the chosen peripheral.
// Connecting while already connected is not an error.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.cancelGraceLocked()
	c.status.State = StateConnecting
	c.status.LastError = ""
	c.publishLocked()
	c.mu.Unlock()

	p, err := c.dev.Connect(ctx)
	if err != nil && !errors.Is(err, ble.ErrAlreadyConnected) {
		cerr := normalize(err, KindConnectFailed)
		slog.Warn("[CTRL] connect failed", "kind", cerr.Kind, "error", err)

		c.mu.Lock()
		c.status.State = StateError
		c.status.LastError = err.Error()
		c.status.Peripheral = ble.Peripheral{}
		c.scheduleGraceLocked()
		c.publishLocked()
		c.mu.Unlock()
		return cerr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A peer drop may already have been processed by the pump, so trust
	// the session rather than the Connect result.
	if c.dev.State() == ble.StateConnected {
		c.status.State = StateConnected
		if err == nil {
			c.status.Peripheral = p
		}
	} else {
		c.status.State = StateDisconnected
	}
	c.publishLocked()
	return nil
}

func (c *Controller) cancelGraceLocked() {
	c.graceGen++
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
}

func (c *Controller) scheduleGraceLocked() {
	c.cancelGraceLocked()
	gen := c.graceGen
	c.grace = time.AfterFunc(c.opts.ErrorGrace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.graceGen != gen || c.status.State != StateError {
			return
		}
		c.status.State = StateDisconnected
		c.grace = nil
		c.publishLocked()
	})
}

// Disconnect ends the session. It is safe to call when not connected. The
// session and status are cleared even when tearing down the radio link
// fails; that failure is returned as a KindTransportWriteFailed error.
func (c *Controller) Disconnect() error {
	err := c.dev.Disconnect()
	if err != nil {
		slog.Warn("[CTRL] link teardown failed", "error", err)
	}

	c.mu.Lock()
	c.cancelGraceLocked()
	c.status.State = StateDisconnected
	c.status.Peripheral = ble.Peripheral{}
	c.status.ConfirmedColor = ""
	c.publishLocked()
	c.mu.Unlock()

	if err != nil {
		return normalize(err, KindTransportWriteFailed)
	}
	return nil
}

// SetColor selects a color and sends it to the peripheral. Without a
// connection the selection is only shown locally (simulation mode) and nil
// is returned.
func (c *Controller) SetColor(ctx context.Context, name string, r, g, b int) error {
	c.mu.Lock()
	c.status.DisplayColor = name
	c.publishLocked()
	c.mu.Unlock()

	if c.dev.State() != ble.StateConnected {
		slog.Debug("[CTRL] simulation mode, color not sent", "color", name)
		return nil
	}

	err := c.dev.WriteLED(ctx, protocol.EncodeColor(r, g, b))
	if errors.Is(err, ble.ErrNotConnected) {
		// Lost the link between the check and the write.
		slog.Debug("[CTRL] simulation mode, color not sent", "color", name)
		return nil
	}
	if err != nil {
		slog.Warn("[CTRL] color write failed", "color", name, "error", err)
		return &Error{Kind: KindColorWriteFailed, Err: err}
	}

	c.mu.Lock()
	c.status.ConfirmedColor = name
	c.publishLocked()
	c.mu.Unlock()
	slog.Info("[CTRL] color set", "color", name)
	return nil
}

// UploadSequence sends frequencies (Hz, playback order) to the peripheral
// and returns once the write has completed.
func (c *Controller) UploadSequence(ctx context.Context, freqs []int) error {
	if len(freqs) > protocol.MaxNotes {
		return &Error{Kind: KindInvalidSequence, Err: fmt.Errorf("%d notes exceeds the %d note limit", len(freqs), protocol.MaxNotes)}
	}
	for i, f := range freqs {
		if f <= 0 {
			return &Error{Kind: KindInvalidSequence, Err: fmt.Errorf("step %d: frequency %d is not positive", i+1, f)}
		}
	}

	if c.dev.State() != ble.StateConnected {
		return &Error{Kind: KindNotConnected, Err: ble.ErrNotConnected}
	}

	if err := c.dev.WriteNotes(ctx, protocol.EncodeNotes(freqs)); err != nil {
		cerr := normalize(err, KindTransportWriteFailed)
		slog.Warn("[CTRL] sequence upload failed", "kind", cerr.Kind, "error", err)
		return cerr
	}
	slog.Info("[CTRL] sequence uploaded", "notes", len(freqs))
	return nil
}

// Close stops event processing and ends all subscriptions. It does not
// disconnect the device.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelGraceLocked()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
}
