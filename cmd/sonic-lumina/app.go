package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/chaz8081/sonic-lumina/internal/audio"
	"github.com/chaz8081/sonic-lumina/internal/control"
	"github.com/chaz8081/sonic-lumina/internal/hotkey"
	"github.com/chaz8081/sonic-lumina/internal/preset"
	"github.com/chaz8081/sonic-lumina/internal/sequencer"
)

// app turns hotkey actions into controller calls.
type app struct {
	ctrl      *control.Controller
	seq       *sequencer.Sequencer
	player    *audio.Player // nil when audio preview is off
	params    audio.ToneParams
	exportDir string
	now       func() time.Time

	// previewDur is how long an edited note sounds.
	previewDur time.Duration

	// editMu guards step, the index of the step being edited.
	editMu sync.Mutex
	step   int

	// colorLimit throttles color writes while a hotkey auto-repeats.
	colorLimit *rate.Limiter

	// connectMu keeps a second connect press from starting another
	// discovery while one is running.
	connectMu sync.Mutex
	once      sync.Once
}

func (a *app) handle(ctx context.Context, action hotkey.Action) {
	var err error
	switch action {
	case hotkey.ActionConnect:
		err = a.toggleConnect(ctx)
	case hotkey.ActionNextColor:
		err = a.nextColor(ctx)
	case hotkey.ActionPreview:
		err = a.preview(ctx)
	case hotkey.ActionUpload:
		err = a.ctrl.UploadSequence(ctx, a.seq.Frequencies())
	case hotkey.ActionNextStep:
		err = a.nextStep(ctx)
	case hotkey.ActionNextNote:
		err = a.nextNote(ctx)
	case hotkey.ActionResetSequence:
		a.resetSequence()
	case hotkey.ActionExport:
		var path string
		path, err = a.export()
		if err == nil {
			slog.Info("Sequence exported", "path", path)
		}
	}
	if err != nil {
		attrs := []any{"action", action, "error", err}
		if kind, ok := control.KindOf(err); ok {
			attrs = append(attrs, "kind", kind)
		}
		slog.Error("Action failed", attrs...)
	}
}

func (a *app) toggleConnect(ctx context.Context) error {
	if !a.connectMu.TryLock() {
		slog.Debug("Connect already in progress")
		return nil
	}
	defer a.connectMu.Unlock()

	if a.ctrl.Connected() {
		return a.ctrl.Disconnect()
	}
	return a.ctrl.Connect(ctx)
}

func (a *app) nextColor(ctx context.Context) error {
	if a.colorLimit != nil && !a.colorLimit.Allow() {
		slog.Debug("Color change throttled")
		return nil
	}
	c := preset.NextColor(a.ctrl.Status().DisplayColor)
	return a.ctrl.SetColor(ctx, c.Name, c.R, c.G, c.B)
}

// nextStep moves the edit cursor forward, wrapping, and sounds that step.
func (a *app) nextStep(ctx context.Context) error {
	notes := a.seq.Notes()
	a.editMu.Lock()
	a.step = (a.step + 1) % len(notes)
	n := notes[a.step]
	a.editMu.Unlock()

	slog.Info("Editing step", "step", n.ID+1, "note", n.Name)
	return a.previewNote(ctx, n.Frequency)
}

// nextNote raises the note at the edit cursor by one step in the note
// table and sounds the result.
func (a *app) nextNote(ctx context.Context) error {
	a.editMu.Lock()
	step := a.step
	name := preset.NextNote(a.seq.Notes()[step].Name)
	freq, err := a.seq.Set(step, name)
	a.editMu.Unlock()
	if err != nil {
		return err
	}

	slog.Info("Step changed", "step", step+1, "note", name, "hz", freq)
	return a.previewNote(ctx, freq)
}

// resetSequence restores the default tune and moves the cursor to the
// first step.
func (a *app) resetSequence() {
	a.editMu.Lock()
	a.seq.Reset()
	a.step = 0
	a.editMu.Unlock()
	slog.Info("Sequence reset")
}

// previewNote sounds one edited note. Without a player the edit still
// stands, so nothing is reported.
func (a *app) previewNote(ctx context.Context, freq int) error {
	if a.player == nil {
		return nil
	}
	return a.player.PreviewNote(ctx, freq, a.previewDur)
}

func (a *app) preview(ctx context.Context) error {
	if a.player == nil {
		return fmt.Errorf("audio preview is disabled")
	}
	return a.player.PreviewSequence(ctx, a.seq.Frequencies())
}

// export writes the current sequence to a timestamped WAV file in exportDir.
func (a *app) export() (string, error) {
	if err := os.MkdirAll(a.exportDir, 0755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	path := filepath.Join(a.exportDir, "sequence-"+now().Format("20060102-150405")+".wav")
	if err := audio.ExportSequence(path, a.seq.Frequencies(), a.params); err != nil {
		return "", err
	}
	return path, nil
}

// shutdown disconnects the device and releases audio. Safe to call twice.
func (a *app) shutdown() {
	a.once.Do(func() {
		// Teardown failures are logged by the controller.
		_ = a.ctrl.Disconnect()
		a.ctrl.Close()
		if a.player != nil {
			a.player.Close()
		}
	})
}
