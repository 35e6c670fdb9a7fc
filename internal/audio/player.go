// Package audio previews note sequences on the local sound card and
// renders them to WAV files.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Player plays mono float32 sample buffers on the default output device.
// One buffer plays at a time; concurrent calls wait their turn.
type Player struct {
	ctx    *malgo.AllocatedContext
	params ToneParams

	playMu sync.Mutex

	mu   sync.Mutex
	buf  []float32
	pos  int
	done chan struct{}
}

// NewPlayer creates a new audio player. Call Close() when done.
func NewPlayer(params ToneParams) (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &Player{ctx: ctx, params: params}, nil
}

// PreviewNote plays a single short tone, as when a step is edited.
func (p *Player) PreviewNote(ctx context.Context, freq int, dur time.Duration) error {
	return p.Play(ctx, SquareTone(freq, dur, p.params))
}

// PreviewSequence plays a whole sequence in order.
func (p *Player) PreviewSequence(ctx context.Context, freqs []int) error {
	slog.Debug("[AUDIO] preview sequence", "notes", len(freqs))
	return p.Play(ctx, RenderSequence(freqs, p.params))
}

// Play blocks until samples have been played or ctx is cancelled.
func (p *Player) Play(ctx context.Context, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	p.playMu.Lock()
	defer p.playMu.Unlock()
	if p.ctx == nil {
		return errors.New("audio: player closed")
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.buf = samples
	p.pos = 0
	p.done = done
	p.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatF32
	deviceCfg.Playback.Channels = 1
	deviceCfg.SampleRate = p.params.SampleRate

	device, err := malgo.InitDevice(p.ctx.Context, deviceCfg, malgo.DeviceCallbacks{
		Data: p.onData,
	})
	if err != nil {
		return fmt.Errorf("initializing playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("starting playback device: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases all audio resources.
func (p *Player) Close() error {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	if p.ctx != nil {
		if err := p.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		p.ctx.Free()
		p.ctx = nil
	}
	return nil
}

// onData is the malgo callback that fills the output buffer. Once the
// samples run out it writes silence and signals completion.
func (p *Player) onData(pOutput, _ []byte, frameCount uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := fillFloat32(pOutput, p.buf[p.pos:], frameCount)
	p.pos += n
	if p.pos >= len(p.buf) && p.done != nil {
		close(p.done)
		p.done = nil
	}
}

// fillFloat32 writes up to frameCount samples as little-endian float32,
// zero-filling the remainder, and returns how many samples were consumed.
func fillFloat32(out []byte, samples []float32, frameCount uint32) int {
	n := 0
	for i := uint32(0); i < frameCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(out)) {
			break
		}
		var v float32
		if n < len(samples) {
			v = samples[n]
			n++
		}
		binary.LittleEndian.PutUint32(out[offset:offset+4], math.Float32bits(v))
	}
	return n
}
