// Package sequencer holds the editable note sequence that is previewed
// locally and uploaded to the peripheral.
package sequencer

import (
	"fmt"
	"sync"

	"github.com/chaz8081/sonic-lumina/internal/ble/protocol"
	"github.com/chaz8081/sonic-lumina/internal/preset"
)

// Sequencer is an ordered, fixed-length list of notes. Safe for concurrent use.
type Sequencer struct {
	mu    sync.Mutex
	notes []preset.Note
}

// New creates a sequencer holding the default sequence.
func New() *Sequencer {
	return &Sequencer{notes: preset.DefaultSequence()}
}

// FromNames builds a sequence from note names such as "C4".
func FromNames(names []string) (*Sequencer, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("sequencer: empty sequence")
	}
	if len(names) > protocol.MaxNotes {
		return nil, fmt.Errorf("sequencer: %d notes exceeds the %d note limit", len(names), protocol.MaxNotes)
	}
	notes := make([]preset.Note, len(names))
	for i, name := range names {
		freq, ok := preset.Frequencies[name]
		if !ok {
			return nil, fmt.Errorf("sequencer: step %d: unknown note %q", i+1, name)
		}
		notes[i] = preset.Note{ID: i, Name: name, Frequency: freq}
	}
	return &Sequencer{notes: notes}, nil
}

// Set replaces the note at index and returns its frequency.
func (s *Sequencer) Set(index int, name string) (int, error) {
	freq, ok := preset.Frequencies[name]
	if !ok {
		return 0, fmt.Errorf("sequencer: unknown note %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.notes) {
		return 0, fmt.Errorf("sequencer: step %d out of range [0,%d)", index, len(s.notes))
	}
	s.notes[index].Name = name
	s.notes[index].Frequency = freq
	return freq, nil
}

// Reset restores the default sequence.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = preset.DefaultSequence()
}

// Notes returns a copy of the sequence.
func (s *Sequencer) Notes() []preset.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]preset.Note, len(s.notes))
	copy(out, s.notes)
	return out
}

// Frequencies returns the sequence in playback order, ready for upload.
func (s *Sequencer) Frequencies() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	freqs := make([]int, len(s.notes))
	for i, n := range s.notes {
		freqs[i] = n.Frequency
	}
	return freqs
}
