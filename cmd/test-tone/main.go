// Command test-tone is a manual test for the audio preview.
// It plays one note, or the default tune when no note is given.
//
// Usage:
//
//	go run ./cmd/test-tone [--note A4]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chaz8081/sonic-lumina/internal/audio"
	"github.com/chaz8081/sonic-lumina/internal/preset"
	"github.com/chaz8081/sonic-lumina/internal/sequencer"
)

func main() {
	note := flag.String("note", "", "note to play, e.g. C4 (default: the whole tune)")
	dur := flag.Duration("dur", 100*time.Millisecond, "single note length")
	flag.Parse()

	player, err := audio.NewPlayer(audio.DefaultToneParams())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer player.Close()

	ctx := context.Background()
	if *note != "" {
		freq, ok := preset.Frequencies[*note]
		if !ok {
			fmt.Printf("Error: unknown note %q (known: %v)\n", *note, preset.NoteNames())
			return
		}
		fmt.Printf("Playing %s (%d Hz)...\n", *note, freq)
		if err := player.PreviewNote(ctx, freq, *dur); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
		return
	}

	seq := sequencer.New()
	for _, n := range seq.Notes() {
		fmt.Printf("  %s %d Hz\n", n.Name, n.Frequency)
	}
	if err := player.PreviewSequence(ctx, seq.Frequencies()); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Done.")
}
