package audio

import (
	"math"
	"time"
)

// ToneParams shapes the preview tones. The defaults match the browser
// preview: a square wave starting at gain 0.1 and decaying exponentially
// to a tenth of that by the end of the tone.
type ToneParams struct {
	SampleRate uint32
	Volume     float64       // starting gain, 0..1
	Tone       time.Duration // audible part of each sequence step
	Step       time.Duration // spacing between sequence steps
}

// DefaultToneParams returns the preview shape used by the controller.
func DefaultToneParams() ToneParams {
	return ToneParams{
		SampleRate: 44100,
		Volume:     0.1,
		Tone:       200 * time.Millisecond,
		Step:       250 * time.Millisecond,
	}
}

func sampleCount(d time.Duration, sampleRate uint32) int {
	return int(d.Seconds() * float64(sampleRate))
}

// SquareTone synthesizes one mono square-wave tone.
func SquareTone(freq int, dur time.Duration, p ToneParams) []float32 {
	n := sampleCount(dur, p.SampleRate)
	out := make([]float32, n)
	if freq <= 0 || n == 0 {
		return out
	}

	period := float64(p.SampleRate) / float64(freq)
	// Exponential ramp from Volume to Volume/10 across the tone.
	decay := math.Log(0.1) / float64(n)
	for i := range out {
		gain := p.Volume * math.Exp(decay*float64(i))
		phase := math.Mod(float64(i), period) / period
		if phase < 0.5 {
			out[i] = float32(gain)
		} else {
			out[i] = float32(-gain)
		}
	}
	return out
}

// RenderSequence lays the tones of a sequence out on a timeline, one every
// p.Step, each lasting p.Tone.
func RenderSequence(freqs []int, p ToneParams) []float32 {
	step := sampleCount(p.Step, p.SampleRate)
	tone := p.Tone
	if tone > p.Step {
		tone = p.Step
	}
	out := make([]float32, 0, step*len(freqs))
	for _, f := range freqs {
		t := SquareTone(f, tone, p)
		out = append(out, t...)
		out = append(out, make([]float32, step-len(t))...)
	}
	return out
}
