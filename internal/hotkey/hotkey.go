// Package hotkey provides a global hotkey listener using gohook.
// Each key combo is bound to one Action; pressing the combo emits that
// action on the Events channel.
package hotkey

import (
	"fmt"
	"sync"

	hook "github.com/robotn/gohook"
)

// Action is what the user asked for by pressing a bound combo.
type Action int

const (
	// ActionConnect toggles the device connection.
	ActionConnect Action = iota
	// ActionNextColor cycles to the next preset color.
	ActionNextColor
	// ActionPreview plays the current sequence locally.
	ActionPreview
	// ActionUpload sends the current sequence to the device.
	ActionUpload
	// ActionExport writes the current sequence to a WAV file.
	ActionExport
	// ActionNextStep moves the edit cursor to the next sequence step.
	ActionNextStep
	// ActionNextNote raises the note under the edit cursor.
	ActionNextNote
	// ActionResetSequence restores the default sequence.
	ActionResetSequence
)

func (a Action) String() string {
	switch a {
	case ActionConnect:
		return "connect"
	case ActionNextColor:
		return "next-color"
	case ActionPreview:
		return "preview"
	case ActionUpload:
		return "upload"
	case ActionExport:
		return "export"
	case ActionNextStep:
		return "next-step"
	case ActionNextNote:
		return "next-note"
	case ActionResetSequence:
		return "reset-sequence"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Binding maps a key combo to an action.
// Keys are lowercase key names (e.g., ["ctrl", "shift", "b"]).
type Binding struct {
	Action Action
	Keys   []string
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Action Action
}

// Listener manages a set of global hotkeys and emits action events.
type Listener struct {
	bindings []Binding
	ch       chan Event
	done     chan struct{}
	once     sync.Once
}

// NewListener creates a Listener for the given bindings.
func NewListener(bindings []Binding) *Listener {
	return &Listener{
		bindings: bindings,
		ch:       make(chan Event, 16),
		done:     make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkeys.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	for _, b := range l.bindings {
		action := b.Action
		hook.Register(hook.KeyDown, b.Keys, func(e hook.Event) {
			l.fire(action)
		})
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// fire emits an action without blocking the hook goroutine.
func (l *Listener) fire(a Action) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.ch <- Event{Action: a}:
	default: // drop if the consumer is behind
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
