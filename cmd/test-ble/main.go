// Command test-ble is a manual test for discovery and the GATT writes.
// It lists nearby Sonic Lumina peripherals, then optionally connects and
// sends one color and the default tune.
//
// Usage:
//
//	go run ./cmd/test-ble [--adapter hci0] [--timeout 5s] [--connect] [--color Blue]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chaz8081/sonic-lumina/internal/ble"
	"github.com/chaz8081/sonic-lumina/internal/ble/protocol"
	"github.com/chaz8081/sonic-lumina/internal/preset"
	"github.com/chaz8081/sonic-lumina/internal/sequencer"
)

func main() {
	adapterID := flag.String("adapter", "", "BLE adapter id (Linux only)")
	timeout := flag.Duration("timeout", 5*time.Second, "scan duration")
	connect := flag.Bool("connect", false, "connect to the strongest peripheral and write")
	color := flag.String("color", "Blue", "preset color to send with --connect")
	flag.Parse()

	adapter, err := ble.NewTinyGoAdapter(*adapterID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scanning for %s...\n", *timeout)
	devices, err := ble.ScanForDevices(adapter, *timeout)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return
	}
	for i, d := range devices {
		fmt.Printf("  [%d] %-20s %s  %ddBm\n", i+1, d.Name, d.Address, d.RSSI)
	}

	if !*connect {
		return
	}

	c, ok := preset.LookupColor(*color)
	if !ok {
		fmt.Printf("Error: unknown color %q\n", *color)
		os.Exit(1)
	}

	opts := ble.DefaultSessionOptions()
	opts.ScanTimeout = *timeout
	session := ble.NewSession(adapter, opts)

	ctx := context.Background()
	p, err := session.Connect(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer session.Disconnect()
	fmt.Printf("Connected to %s (%s)\n", p.Name, p.Address)

	if err := session.WriteLED(ctx, protocol.EncodeColor(c.R, c.G, c.B)); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Color set to %s\n", c.Name)

	freqs := sequencer.New().Frequencies()
	if err := session.WriteNotes(ctx, protocol.EncodeNotes(freqs)); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Uploaded %d notes\n", len(freqs))
	fmt.Println("\nDone!")
}
