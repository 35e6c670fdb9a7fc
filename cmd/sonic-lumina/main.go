package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/chaz8081/sonic-lumina/internal/audio"
	"github.com/chaz8081/sonic-lumina/internal/ble"
	"github.com/chaz8081/sonic-lumina/internal/config"
	"github.com/chaz8081/sonic-lumina/internal/control"
	"github.com/chaz8081/sonic-lumina/internal/hotkey"
	"github.com/chaz8081/sonic-lumina/internal/sequencer"
)

// colorInterval is the minimum spacing between color writes.
const colorInterval = 150 * time.Millisecond

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/sonic-lumina/config.yaml)")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	exportPath := flag.String("export", "", "render the configured sequence to this WAV file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		} else {
			fmt.Printf("Wrote default config to %s\n", path)
		}
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	seq, err := buildSequence(cfg)
	if err != nil {
		log.Fatalf("sequence: %v", err)
	}
	params := toneParams(cfg)

	if *exportPath != "" {
		if err := audio.ExportSequence(*exportPath, seq.Frequencies(), params); err != nil {
			log.Fatalf("export: %v", err)
		}
		fmt.Printf("Wrote %d notes to %s\n", len(seq.Frequencies()), *exportPath)
		return
	}

	printBanner(cfg)

	// Initialize BLE session. Without a usable radio the session still
	// exists and every connect reports an unsupported platform.
	var adapter ble.Adapter
	if a, err := ble.NewTinyGoAdapter(cfg.BLE.AdapterID); err != nil {
		slog.Warn("BLE unavailable, running in simulation mode", "error", err)
	} else {
		adapter = a
	}
	session := ble.NewSession(adapter, ble.SessionOptions{
		ScanTimeout:    cfg.BLE.ScanTimeout,
		ConnectTimeout: cfg.BLE.ConnectTimeout,
		Picker: ble.PreferredPicker{
			Name:    cfg.BLE.PreferredName,
			Address: cfg.BLE.PreferredAddress,
		},
	})

	ctrl := control.New(session, control.Options{
		ErrorGrace:   cfg.UI.ErrorGrace,
		InitialColor: cfg.UI.InitialColor,
	})

	// Initialize audio preview
	var player *audio.Player
	if cfg.Audio.Enabled {
		player, err = audio.NewPlayer(params)
		if err != nil {
			slog.Warn("Audio preview disabled", "error", err)
			player = nil
		} else {
			log.Println("Audio player ready")
		}
	}

	a := &app{
		ctrl:       ctrl,
		seq:        seq,
		player:     player,
		params:     params,
		exportDir:  cfg.ExportDir,
		previewDur: cfg.Audio.Preview,
		colorLimit: rate.NewLimiter(rate.Every(colorInterval), 1),
	}

	// Initialize hotkey listener
	listener := hotkey.NewListener(bindings(cfg))
	log.Println("Hotkey listener ready")

	statusCh, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	go logStatus(statusCh)

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start hotkey listener in background
	go listener.Start()

	log.Printf("Ready! Press %s to connect. Ctrl+C to quit.", strings.Join(cfg.Hotkey.Connect, "+"))

	// Main event loop
	events := listener.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Hotkey channel closed, listener stopped
				log.Println("Hotkey listener stopped")
				a.shutdown()
				return
			}
			go a.handle(ctx, ev.Action)

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			cancel()
			a.shutdown()
			log.Println("Goodbye!")
			// Exit directly to avoid gohook's C cleanup crash.
			// The OS reclaims the event hook on process exit.
			os.Exit(0)
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

func buildSequence(cfg *config.Config) (*sequencer.Sequencer, error) {
	if len(cfg.Sequence) == 0 {
		return sequencer.New(), nil
	}
	return sequencer.FromNames(cfg.Sequence)
}

func toneParams(cfg *config.Config) audio.ToneParams {
	return audio.ToneParams{
		SampleRate: cfg.Audio.SampleRate,
		Volume:     cfg.Audio.Volume,
		Tone:       cfg.Audio.Tone,
		Step:       cfg.Audio.Step,
	}
}

func bindings(cfg *config.Config) []hotkey.Binding {
	return []hotkey.Binding{
		{Action: hotkey.ActionConnect, Keys: cfg.Hotkey.Connect},
		{Action: hotkey.ActionNextColor, Keys: cfg.Hotkey.NextColor},
		{Action: hotkey.ActionPreview, Keys: cfg.Hotkey.Preview},
		{Action: hotkey.ActionUpload, Keys: cfg.Hotkey.Upload},
		{Action: hotkey.ActionExport, Keys: cfg.Hotkey.Export},
		{Action: hotkey.ActionNextStep, Keys: cfg.Hotkey.NextStep},
		{Action: hotkey.ActionNextNote, Keys: cfg.Hotkey.NextNote},
		{Action: hotkey.ActionResetSequence, Keys: cfg.Hotkey.Reset},
	}
}

// logStatus prints every status change until the subscription ends.
func logStatus(ch <-chan control.Status) {
	var last control.Status
	for st := range ch {
		if st == last {
			continue
		}
		attrs := []any{"state", st.State, "color", st.DisplayColor}
		if st.Peripheral.Name != "" {
			attrs = append(attrs, "device", st.Peripheral.Name)
		}
		if st.LastError != "" {
			attrs = append(attrs, "error", st.LastError)
		}
		slog.Info("Status", attrs...)
		last = st
	}
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== sonic-lumina ===")
	fmt.Printf("  Connect: %s\n", strings.Join(cfg.Hotkey.Connect, "+"))
	fmt.Printf("  Color:   %s (start: %s)\n", strings.Join(cfg.Hotkey.NextColor, "+"), cfg.UI.InitialColor)
	fmt.Printf("  Preview: %s\n", strings.Join(cfg.Hotkey.Preview, "+"))
	fmt.Printf("  Upload:  %s\n", strings.Join(cfg.Hotkey.Upload, "+"))
	fmt.Printf("  Export:  %s -> %s\n", strings.Join(cfg.Hotkey.Export, "+"), cfg.ExportDir)
	fmt.Printf("  Edit:    %s step, %s note, %s reset\n", strings.Join(cfg.Hotkey.NextStep, "+"), strings.Join(cfg.Hotkey.NextNote, "+"), strings.Join(cfg.Hotkey.Reset, "+"))
	fmt.Printf("  Scan:    %s (connect timeout %s)\n", cfg.BLE.ScanTimeout, cfg.BLE.ConnectTimeout)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("====================")
}
