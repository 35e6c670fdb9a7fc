package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/chaz8081/sonic-lumina/internal/audio"
	"github.com/chaz8081/sonic-lumina/internal/ble"
	"github.com/chaz8081/sonic-lumina/internal/config"
	"github.com/chaz8081/sonic-lumina/internal/control"
	"github.com/chaz8081/sonic-lumina/internal/hotkey"
	"github.com/chaz8081/sonic-lumina/internal/sequencer"
)

// newOfflineApp builds an app whose session has no radio.
func newOfflineApp(t *testing.T) *app {
	t.Helper()
	ctrl := control.New(ble.NewSession(nil, ble.DefaultSessionOptions()), control.Options{
		ErrorGrace:   time.Second,
		InitialColor: "Red",
	})
	t.Cleanup(ctrl.Close)

	params := audio.DefaultToneParams()
	params.SampleRate = 8000
	return &app{
		ctrl:       ctrl,
		seq:        sequencer.New(),
		params:     params,
		exportDir:  filepath.Join(t.TempDir(), "out"),
		previewDur: 100 * time.Millisecond,
		now:        func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func TestNextColorWithoutDevice(t *testing.T) {
	a := newOfflineApp(t)

	if err := a.nextColor(context.Background()); err != nil {
		t.Fatalf("nextColor() error = %v", err)
	}
	st := a.ctrl.Status()
	if st.DisplayColor != "Green" {
		t.Errorf("DisplayColor = %q, want %q", st.DisplayColor, "Green")
	}
	if st.ConfirmedColor != "" {
		t.Errorf("ConfirmedColor = %q, want empty in simulation mode", st.ConfirmedColor)
	}
}

func TestNextColorThrottled(t *testing.T) {
	a := newOfflineApp(t)
	a.colorLimit = rate.NewLimiter(rate.Every(time.Hour), 1)

	for i := 0; i < 3; i++ {
		if err := a.nextColor(context.Background()); err != nil {
			t.Fatalf("nextColor() error = %v", err)
		}
	}
	if got := a.ctrl.Status().DisplayColor; got != "Green" {
		t.Errorf("DisplayColor = %q, want %q after one allowed change", got, "Green")
	}
}

func TestToggleConnectUnsupported(t *testing.T) {
	a := newOfflineApp(t)

	err := a.toggleConnect(context.Background())
	if kind, ok := control.KindOf(err); !ok || kind != control.KindUnsupportedPlatform {
		t.Errorf("toggleConnect() error = %v, want UnsupportedPlatform", err)
	}
	if a.ctrl.Status().State != control.StateError {
		t.Errorf("State = %s, want ERROR", a.ctrl.Status().State)
	}
}

func TestUploadWithoutDevice(t *testing.T) {
	a := newOfflineApp(t)

	err := a.ctrl.UploadSequence(context.Background(), a.seq.Frequencies())
	if kind, _ := control.KindOf(err); kind != control.KindNotConnected {
		t.Errorf("UploadSequence() error = %v, want NotConnected", err)
	}
	// handle logs the failure and does not panic
	a.handle(context.Background(), hotkey.ActionUpload)
}

func TestPreviewDisabled(t *testing.T) {
	a := newOfflineApp(t)
	if err := a.preview(context.Background()); err == nil {
		t.Error("preview() without a player should fail")
	}
}

func TestExport(t *testing.T) {
	a := newOfflineApp(t)

	path, err := a.export()
	if err != nil {
		t.Fatalf("export() error = %v", err)
	}
	want := filepath.Join(a.exportDir, "sequence-20260102-030405.wav")
	if path != want {
		t.Errorf("export() path = %q, want %q", path, want)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
	if info.Size() <= 44 {
		t.Errorf("exported file size = %d, want audio data after the header", info.Size())
	}
}

func TestEditStep(t *testing.T) {
	a := newOfflineApp(t)
	ctx := context.Background()

	// Step 0 is C4 in the default tune.
	if err := a.nextNote(ctx); err != nil {
		t.Fatalf("nextNote() error = %v", err)
	}
	got := a.seq.Notes()
	if got[0].Name != "D4" || got[0].Frequency != 294 {
		t.Errorf("step 1 = %s/%d, want D4/294", got[0].Name, got[0].Frequency)
	}

	// Step 2 holds the 133 Hz C3; raising it uses the table value for D3.
	if err := a.nextStep(ctx); err != nil {
		t.Fatalf("nextStep() error = %v", err)
	}
	a.handle(ctx, hotkey.ActionNextStep)
	a.handle(ctx, hotkey.ActionNextNote)
	got = a.seq.Notes()
	if got[2].Name != "D3" || got[2].Frequency != 147 {
		t.Errorf("step 3 = %s/%d, want D3/147", got[2].Name, got[2].Frequency)
	}
	if got[1].Name != "D4" {
		t.Errorf("step 2 changed to %s, only the cursor step should change", got[1].Name)
	}

	if a.ctrl.Status().State != control.StateDisconnected {
		t.Errorf("editing should not touch the connection, state = %s", a.ctrl.Status().State)
	}
}

func TestNextStepWraps(t *testing.T) {
	a := newOfflineApp(t)
	n := len(a.seq.Notes())
	for i := 0; i < n; i++ {
		if err := a.nextStep(context.Background()); err != nil {
			t.Fatalf("nextStep() error = %v", err)
		}
	}
	a.editMu.Lock()
	step := a.step
	a.editMu.Unlock()
	if step != 0 {
		t.Errorf("step after %d moves = %d, want 0", n, step)
	}
}

func TestResetSequence(t *testing.T) {
	a := newOfflineApp(t)
	ctx := context.Background()
	a.nextStep(ctx)
	a.nextNote(ctx)

	a.handle(ctx, hotkey.ActionResetSequence)

	want := sequencer.New().Frequencies()
	got := a.seq.Frequencies()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Frequencies() = %v, want default %v", got, want)
		}
	}
	a.editMu.Lock()
	defer a.editMu.Unlock()
	if a.step != 0 {
		t.Errorf("step = %d after reset, want 0", a.step)
	}
}

func TestShutdownTwice(t *testing.T) {
	a := newOfflineApp(t)
	a.shutdown()
	a.shutdown()
}

func TestBuildSequence(t *testing.T) {
	cfg := config.Default()
	seq, err := buildSequence(cfg)
	if err != nil {
		t.Fatalf("buildSequence(default) error = %v", err)
	}
	if len(seq.Frequencies()) != 8 {
		t.Errorf("default sequence length = %d, want 8", len(seq.Frequencies()))
	}

	cfg.Sequence = []string{"A4", "C5"}
	seq, err = buildSequence(cfg)
	if err != nil {
		t.Fatalf("buildSequence() error = %v", err)
	}
	got := seq.Frequencies()
	if len(got) != 2 || got[0] != 440 || got[1] != 523 {
		t.Errorf("Frequencies() = %v, want [440 523]", got)
	}
}

func TestBindingsCoverEveryAction(t *testing.T) {
	seen := make(map[hotkey.Action]bool)
	for _, b := range bindings(config.Default()) {
		if len(b.Keys) == 0 {
			t.Errorf("binding %s has no keys", b.Action)
		}
		seen[b.Action] = true
	}
	all := []hotkey.Action{
		hotkey.ActionConnect, hotkey.ActionNextColor, hotkey.ActionPreview, hotkey.ActionUpload,
		hotkey.ActionExport, hotkey.ActionNextStep, hotkey.ActionNextNote, hotkey.ActionResetSequence,
	}
	for _, a := range all {
		if !seen[a] {
			t.Errorf("no binding for %s", a)
		}
	}
}
