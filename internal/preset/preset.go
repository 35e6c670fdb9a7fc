// Package preset holds the built-in LED colors and note tables.
package preset

import (
	"sort"
	"strings"
)

// Color is a named LED preset. Hex is only used for display.
type Color struct {
	Name    string
	R, G, B int
	Hex     string
}

// Colors are the presets offered by the controller, in display order.
var Colors = []Color{
	{Name: "Red", R: 1, G: 0, B: 0, Hex: "#FF0000"},
	{Name: "Green", R: 0, G: 1, B: 0, Hex: "#00FF00"},
	{Name: "Blue", R: 0, G: 0, B: 1, Hex: "#0000FF"},
	{Name: "Yellow", R: 1, G: 1, B: 0, Hex: "#FFFF00"},
	{Name: "Cyan", R: 0, G: 1, B: 1, Hex: "#00FFFF"},
	{Name: "Purple", R: 1, G: 0, B: 1, Hex: "#FF00FF"},
	{Name: "White", R: 1, G: 1, B: 1, Hex: "#FFFFFF"},
	{Name: "Off", R: 0, G: 0, B: 0, Hex: "#1a1a1a"},
}

// DefaultColor is the preset selected at startup.
const DefaultColor = "Red"

// LookupColor finds a preset by case-insensitive name.
func LookupColor(name string) (Color, bool) {
	for _, c := range Colors {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Color{}, false
}

// NextColor returns the preset after name, wrapping around. Unknown names
// yield the first preset.
func NextColor(name string) Color {
	for i, c := range Colors {
		if strings.EqualFold(c.Name, name) {
			return Colors[(i+1)%len(Colors)]
		}
	}
	return Colors[0]
}

// Frequencies maps note names to the tone frequency in Hz played by the
// peripheral's buzzer.
var Frequencies = map[string]int{
	"C3": 131, "D3": 147, "E3": 165, "F3": 175, "G3": 196, "A3": 220, "B3": 247,
	"C4": 262, "D4": 294, "E4": 330, "F4": 349, "G4": 392, "A4": 440, "B4": 494,
	"C5": 523, "D5": 587, "E5": 659,
}

// NoteNames returns the keys of Frequencies ordered by pitch.
func NoteNames() []string {
	names := make([]string, 0, len(Frequencies))
	for name := range Frequencies {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return Frequencies[names[i]] < Frequencies[names[j]]
	})
	return names
}

// NextNote returns the note one step above name by pitch, wrapping to the
// lowest. Unknown names yield the lowest note.
func NextNote(name string) string {
	names := NoteNames()
	for i, n := range names {
		if n == name {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

// Note is one step of a sequence.
type Note struct {
	ID        int
	Name      string
	Frequency int
}

// DefaultSequence returns a fresh copy of the startup sequence. The third
// and fifth steps use 133 Hz for C3, matching the stock firmware tune
// rather than the table value.
func DefaultSequence() []Note {
	return []Note{
		{ID: 0, Name: "C4", Frequency: 262},
		{ID: 1, Name: "D4", Frequency: 294},
		{ID: 2, Name: "C3", Frequency: 133},
		{ID: 3, Name: "C4", Frequency: 262},
		{ID: 4, Name: "C3", Frequency: 133},
		{ID: 5, Name: "A4", Frequency: 440},
		{ID: 6, Name: "B4", Frequency: 494},
		{ID: 7, Name: "C5", Frequency: 523},
	}
}
