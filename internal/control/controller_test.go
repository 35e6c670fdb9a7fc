package control

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/sonic-lumina/internal/ble"
)

// fakeChar records writes to one characteristic.
type fakeChar struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
}

func (c *fakeChar) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeChar) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return nil
	}
	return c.writes[len(c.writes)-1]
}

func (c *fakeChar) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// fakeConn is a connection to a peripheral running Sonic Lumina firmware.
type fakeConn struct {
	led, notes *fakeChar

	disconnectErr error

	mu sync.Mutex
	cb func()
}

func (c *fakeConn) DiscoverCharacteristic(_, charUUID string) (ble.Characteristic, error) {
	switch charUUID {
	case ble.LEDCharUUID:
		return c.led, nil
	case ble.NotesCharUUID:
		return c.notes, nil
	}
	return nil, fmt.Errorf("fake: no characteristic %s", charUUID)
}

func (c *fakeConn) Disconnect() error { return c.disconnectErr }

func (c *fakeConn) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

func (c *fakeConn) drop() {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// fakeAdapter always discovers one peripheral.
type fakeAdapter struct {
	enableErr error
	conn      *fakeConn
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{conn: &fakeConn{led: &fakeChar{}, notes: &fakeChar{}}}
}

func (a *fakeAdapter) Enable() error { return a.enableErr }

func (a *fakeAdapter) Scan(context.Context, string) ([]ble.Peripheral, error) {
	return []ble.Peripheral{{Name: "SonicLumina", Address: "AA:BB:CC:DD:EE:FF", RSSI: -50}}, nil
}

func (a *fakeAdapter) Connect(context.Context, string) (ble.Connection, error) {
	return a.conn, nil
}

func newTestController(t *testing.T, adapter ble.Adapter) *Controller {
	t.Helper()
	opts := ble.DefaultSessionOptions()
	opts.ScanTimeout = 5 * time.Millisecond
	session := ble.NewSession(adapter, opts)
	c := New(session, Options{ErrorGrace: 30 * time.Millisecond, InitialColor: "Red"})
	t.Cleanup(c.Close)
	return c
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Status().State == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Status().State = %s, want %s", c.Status().State, want)
}

func TestConnectThenSetColor(t *testing.T) {
	adapter := newFakeAdapter()
	c := newTestController(t, adapter)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.SetColor(context.Background(), "Red", 1, 0, 0); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}

	if got := adapter.conn.led.last(); !bytes.Equal(got, []byte{1, 0, 0}) {
		t.Errorf("LED payload = %v, want [1 0 0]", got)
	}
	st := c.Status()
	if st.State != StateConnected {
		t.Errorf("State = %s, want CONNECTED", st.State)
	}
	if st.DisplayColor != "Red" || st.ConfirmedColor != "Red" {
		t.Errorf("colors = display %q confirmed %q, want Red/Red", st.DisplayColor, st.ConfirmedColor)
	}
	if st.Peripheral.Name != "SonicLumina" {
		t.Errorf("Peripheral = %+v, want SonicLumina", st.Peripheral)
	}
}

func TestConnectThenUploadSequence(t *testing.T) {
	adapter := newFakeAdapter()
	c := newTestController(t, adapter)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.UploadSequence(context.Background(), []int{262, 294, 133}); err != nil {
		t.Fatalf("UploadSequence() error = %v", err)
	}

	want := []byte{0x06, 0x01, 0x26, 0x01, 0x85, 0x00}
	if got := adapter.conn.notes.last(); !bytes.Equal(got, want) {
		t.Errorf("notes payload = % x, want % x", got, want)
	}
}

func TestConnectUnsupportedPlatform(t *testing.T) {
	c := newTestController(t, nil)

	err := c.Connect(context.Background())
	if kind, ok := KindOf(err); !ok || kind != KindUnsupportedPlatform {
		t.Fatalf("Connect() error = %v, want KindUnsupportedPlatform", err)
	}
	if !errors.Is(err, ble.ErrUnsupportedPlatform) {
		t.Errorf("error should wrap ble.ErrUnsupportedPlatform")
	}

	st := c.Status()
	if st.State != StateError || st.LastError == "" {
		t.Errorf("Status = %+v, want ERROR with a message", st)
	}
	waitForState(t, c, StateDisconnected)
	if c.Status().LastError == "" {
		t.Error("LastError should survive the grace period")
	}
}

func TestConnectEnableFailure(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.enableErr = errors.New("no adapter")
	c := newTestController(t, adapter)

	if kind, _ := KindOf(c.Connect(context.Background())); kind != KindUnsupportedPlatform {
		t.Errorf("kind = %s, want UnsupportedPlatform", kind)
	}
}

func TestRetryCancelsGracePeriod(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.enableErr = errors.New("radio off")
	c := newTestController(t, adapter)

	_ = c.Connect(context.Background())
	adapter.enableErr = nil
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("retry Connect() error = %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if st := c.Status(); st.State != StateConnected || st.LastError != "" {
		t.Errorf("Status = %+v, grace timer must not clobber a later connect", st)
	}
}

func TestSetColorSimulationMode(t *testing.T) {
	adapter := newFakeAdapter()
	c := newTestController(t, adapter)

	if err := c.SetColor(context.Background(), "Cyan", 0, 1, 1); err != nil {
		t.Fatalf("SetColor() while disconnected error = %v, want nil", err)
	}
	st := c.Status()
	if st.DisplayColor != "Cyan" {
		t.Errorf("DisplayColor = %q, want Cyan", st.DisplayColor)
	}
	if st.ConfirmedColor != "" {
		t.Errorf("ConfirmedColor = %q, want empty", st.ConfirmedColor)
	}
	if adapter.conn.led.count() != 0 {
		t.Error("simulation mode must not write to the radio")
	}
}

func TestPeerDisconnectThenSetColor(t *testing.T) {
	adapter := newFakeAdapter()
	c := newTestController(t, adapter)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	adapter.conn.drop()
	waitForState(t, c, StateDisconnected)

	if err := c.SetColor(context.Background(), "Blue", 0, 0, 1); err != nil {
		t.Errorf("SetColor() after peer disconnect error = %v, want nil", err)
	}
	if c.Connected() {
		t.Error("Connected() = true after peer disconnect")
	}
	if st := c.Status(); st.LastError == "" {
		t.Error("LastError should describe the peer disconnect")
	}
}

func TestSetColorWriteFailure(t *testing.T) {
	adapter := newFakeAdapter()
	c := newTestController(t, adapter)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	adapter.conn.led.writeErr = errors.New("gatt error 0x0e")

	err := c.SetColor(context.Background(), "Green", 0, 1, 0)
	if kind, _ := KindOf(err); kind != KindColorWriteFailed {
		t.Fatalf("SetColor() error = %v, want KindColorWriteFailed", err)
	}
	st := c.Status()
	if st.DisplayColor != "Green" || st.ConfirmedColor == "Green" {
		t.Errorf("colors = display %q confirmed %q; display should update, confirmed should not", st.DisplayColor, st.ConfirmedColor)
	}
	if st.State != StateConnected {
		t.Errorf("State = %s, a failed write must not disconnect", st.State)
	}
}

func TestUploadSequenceNotConnected(t *testing.T) {
	c := newTestController(t, newFakeAdapter())
	err := c.UploadSequence(context.Background(), []int{262})
	if kind, _ := KindOf(err); kind != KindNotConnected {
		t.Errorf("UploadSequence() error = %v, want KindNotConnected", err)
	}
}

func TestUploadSequenceValidation(t *testing.T) {
	adapter := newFakeAdapter()
	c := newTestController(t, adapter)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tests := []struct {
		name  string
		freqs []int
	}{
		{"too long", repeat(440, 65)},
		{"zero frequency", []int{262, 0}},
		{"negative frequency", []int{-1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.UploadSequence(context.Background(), tt.freqs)
			if kind, _ := KindOf(err); kind != KindInvalidSequence {
				t.Errorf("UploadSequence() error = %v, want KindInvalidSequence", err)
			}
		})
	}
	if adapter.conn.notes.count() != 0 {
		t.Error("invalid sequences must not reach the radio")
	}
}

func repeat(freq, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = freq
	}
	return out
}

func TestUploadEmptySequence(t *testing.T) {
	adapter := newFakeAdapter()
	c := newTestController(t, adapter)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.UploadSequence(context.Background(), nil); err != nil {
		t.Fatalf("UploadSequence(nil) error = %v", err)
	}
	if got := adapter.conn.notes.last(); len(got) != 0 || adapter.conn.notes.count() != 1 {
		t.Errorf("empty upload wrote %v (%d writes), want one zero-length write", got, adapter.conn.notes.count())
	}
}

func TestUploadSequenceWriteFailure(t *testing.T) {
	adapter := newFakeAdapter()
	c := newTestController(t, adapter)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	adapter.conn.notes.writeErr = errors.New("link busy")

	err := c.UploadSequence(context.Background(), []int{440})
	if kind, _ := KindOf(err); kind != KindTransportWriteFailed {
		t.Errorf("UploadSequence() error = %v, want KindTransportWriteFailed", err)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	c := newTestController(t, newFakeAdapter())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect() error = %v", err)
	}
	if st := c.Status(); st.State != StateDisconnected {
		t.Errorf("State = %s, want DISCONNECTED", st.State)
	}
}

func TestDisconnectClearsConfirmedColor(t *testing.T) {
	c := newTestController(t, newFakeAdapter())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.SetColor(context.Background(), "Green", 0, 1, 0); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}
	if got := c.Status().ConfirmedColor; got != "Green" {
		t.Fatalf("ConfirmedColor = %q, want %q", got, "Green")
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	st := c.Status()
	if st.ConfirmedColor != "" {
		t.Errorf("ConfirmedColor = %q after disconnect, want empty", st.ConfirmedColor)
	}
	if st.DisplayColor != "Green" {
		t.Errorf("DisplayColor = %q, want %q", st.DisplayColor, "Green")
	}
}

func TestPeerDisconnectClearsConfirmedColor(t *testing.T) {
	adapter := newFakeAdapter()
	c := newTestController(t, adapter)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.SetColor(context.Background(), "Blue", 0, 0, 1); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}

	adapter.conn.drop()
	waitForState(t, c, StateDisconnected)
	if got := c.Status().ConfirmedColor; got != "" {
		t.Errorf("ConfirmedColor = %q after peer disconnect, want empty", got)
	}
}

func TestDisconnectTeardownFailure(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.conn.disconnectErr = errors.New("hci: command disallowed")
	c := newTestController(t, adapter)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := c.Disconnect()
	if kind, ok := KindOf(err); !ok || kind != KindTransportWriteFailed {
		t.Fatalf("Disconnect() error = %v, want kind TransportWriteFailed", err)
	}
	if c.Connected() {
		t.Error("Connected() = true after failed teardown, want session cleared")
	}
	if st := c.Status(); st.State != StateDisconnected {
		t.Errorf("State = %s, want DISCONNECTED", st.State)
	}
	// Already disconnected, so the second call is a no-op.
	if err := c.Disconnect(); err != nil {
		t.Errorf("second Disconnect() error = %v, want nil", err)
	}
}

// stubDevice lets a test choose the session state and deliver events
// directly.
type stubDevice struct {
	mu     sync.Mutex
	state  ble.State
	events chan ble.Event
}

func newStubDevice() *stubDevice {
	return &stubDevice{state: ble.StateDisconnected, events: make(chan ble.Event)}
}

func (d *stubDevice) setState(s ble.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

func (d *stubDevice) Connect(context.Context) (ble.Peripheral, error) {
	d.setState(ble.StateConnected)
	return ble.Peripheral{Name: "SonicLumina", Address: "11:22:33:44:55:66"}, nil
}

func (d *stubDevice) Disconnect() error {
	d.setState(ble.StateDisconnected)
	return nil
}

func (d *stubDevice) WriteLED(context.Context, []byte) error   { return nil }
func (d *stubDevice) WriteNotes(context.Context, []byte) error { return nil }

func (d *stubDevice) State() ble.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *stubDevice) Events() <-chan ble.Event { return d.events }

func TestStaleDisconnectEventAfterReconnect(t *testing.T) {
	dev := newStubDevice()
	c := New(dev, Options{ErrorGrace: 30 * time.Millisecond, InitialColor: "Red"})
	t.Cleanup(c.Close)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.SetColor(context.Background(), "Red", 1, 0, 0); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}

	// A drop from the previous session arrives after the reconnect.
	dev.events <- ble.Event{
		SessionID: "old",
		From:      ble.StateConnected,
		To:        ble.StateDisconnected,
		Cause:     ble.ErrPeerDisconnected,
	}
	// The channel is unbuffered, so this send completes only after the
	// drop above has been handled.
	dev.events <- ble.Event{SessionID: "new", From: ble.StateConnecting, To: ble.StateConnected}

	st := c.Status()
	if st.State != StateConnected {
		t.Errorf("State = %s, want CONNECTED", st.State)
	}
	if st.Peripheral.Address != "11:22:33:44:55:66" {
		t.Errorf("Peripheral = %+v, want the reconnected device", st.Peripheral)
	}
	if st.ConfirmedColor != "Red" {
		t.Errorf("ConfirmedColor = %q, want %q", st.ConfirmedColor, "Red")
	}
	if st.LastError != "" {
		t.Errorf("LastError = %q, want empty", st.LastError)
	}

	// A drop that matches the session state still applies.
	dev.setState(ble.StateDisconnected)
	dev.events <- ble.Event{
		SessionID: "new",
		From:      ble.StateConnected,
		To:        ble.StateDisconnected,
		Cause:     ble.ErrPeerDisconnected,
	}
	waitForState(t, c, StateDisconnected)
}

func TestSubscribe(t *testing.T) {
	c := newTestController(t, newFakeAdapter())
	ch, cancel := c.Subscribe()
	defer cancel()

	if st := <-ch; st.State != StateDisconnected {
		t.Fatalf("initial status = %s, want DISCONNECTED", st.State)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	select {
	case st := <-ch:
		if st.State != StateConnected {
			t.Errorf("latest status = %s, want CONNECTED", st.State)
		}
	case <-time.After(time.Second):
		t.Fatal("no status published after Connect")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	c := New(ble.NewSession(newFakeAdapter(), ble.DefaultSessionOptions()), DefaultOptions())
	ch, _ := c.Subscribe()
	<-ch
	c.Close()
	c.Close()
	if _, ok := <-ch; ok {
		t.Error("subscription should be closed by Close()")
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindNotConnected, Err: ble.ErrNotConnected}
	if got, want := err.Error(), "NotConnected: ble: not connected"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := (&Error{Kind: KindInvalidSequence}).Error(); got != "InvalidSequence" {
		t.Errorf("Error() = %q, want InvalidSequence", got)
	}
	if got := Kind(42).String(); got != "Kind(42)" {
		t.Errorf("Kind(42).String() = %q", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{ble.ErrUnsupportedPlatform, KindUnsupportedPlatform},
		{fmt.Errorf("%w: none", ble.ErrNoDeviceSelected), KindNoDeviceSelected},
		{ble.ErrServiceUnavailable, KindServiceUnavailable},
		{ble.ErrConnectionTimeout, KindConnectionTimeout},
		{ble.ErrConnectFailed, KindConnectFailed},
		{ble.ErrNotConnected, KindNotConnected},
		{ble.ErrTransportWriteFailed, KindTransportWriteFailed},
		{errors.New("other"), KindConnectFailed},
	}
	for _, tt := range tests {
		if got := normalize(tt.err, KindConnectFailed).Kind; got != tt.want {
			t.Errorf("normalize(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
