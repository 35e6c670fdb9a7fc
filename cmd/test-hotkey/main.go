// Command test-hotkey is a manual test for the global hotkey listener.
// Run it, then press the configured combos to see events.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/sonic-lumina/internal/config"
	"github.com/chaz8081/sonic-lumina/internal/hotkey"
)

func main() {
	cfg := config.Default()
	bindings := []hotkey.Binding{
		{Action: hotkey.ActionConnect, Keys: cfg.Hotkey.Connect},
		{Action: hotkey.ActionNextColor, Keys: cfg.Hotkey.NextColor},
		{Action: hotkey.ActionPreview, Keys: cfg.Hotkey.Preview},
		{Action: hotkey.ActionUpload, Keys: cfg.Hotkey.Upload},
		{Action: hotkey.ActionExport, Keys: cfg.Hotkey.Export},
		{Action: hotkey.ActionNextStep, Keys: cfg.Hotkey.NextStep},
		{Action: hotkey.ActionNextNote, Keys: cfg.Hotkey.NextNote},
		{Action: hotkey.ActionResetSequence, Keys: cfg.Hotkey.Reset},
	}

	fmt.Println("Listening for:")
	for _, b := range bindings {
		fmt.Printf("  %-15s %s\n", b.Action, strings.Join(b.Keys, "+"))
	}
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(bindings)

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Read events
	go func() {
		for ev := range listener.Events() {
			fmt.Printf(">>> %s\n", ev.Action)
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
