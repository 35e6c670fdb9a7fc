// Package protocol implements the Sonic Lumina BLE payload formats.
//
// The LED characteristic takes three bytes, one per channel in R,G,B order.
// The notes characteristic takes a packed array of unsigned little-endian
// 16-bit frequencies in playback order.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// ColorPayloadSize is the exact length of an LED control write.
	ColorPayloadSize = 3
	// NoteSize is the number of bytes per encoded frequency.
	NoteSize = 2
	// MaxNotes bounds a single sequence upload. The codec itself does not
	// enforce it; callers reject longer sequences before encoding.
	MaxNotes = 64
)

// ErrShortPayload is returned when decoding a payload with the wrong length.
var ErrShortPayload = errors.New("protocol: malformed payload length")

// EncodeColor packs an RGB triad. Channels are clamped to [0,255] so the
// 0/1 baseline protocol and future PWM intensities share one wire shape.
func EncodeColor(r, g, b int) []byte {
	return []byte{clampByte(r), clampByte(g), clampByte(b)}
}

// DecodeColor is the inverse of EncodeColor.
func DecodeColor(data []byte) (r, g, b int, err error) {
	if len(data) != ColorPayloadSize {
		return 0, 0, 0, fmt.Errorf("%w: color payload is %d bytes, want %d", ErrShortPayload, len(data), ColorPayloadSize)
	}
	return int(data[0]), int(data[1]), int(data[2]), nil
}

// EncodeNotes packs frequencies as little-endian uint16 values.
// Out-of-range values are clamped, never dropped, so the device plays the
// same number of steps in the same order.
func EncodeNotes(freqs []int) []byte {
	buf := make([]byte, 0, len(freqs)*NoteSize)
	for _, f := range freqs {
		buf = binary.LittleEndian.AppendUint16(buf, clampUint16(f))
	}
	return buf
}

// DecodeNotes is the inverse of EncodeNotes.
func DecodeNotes(data []byte) ([]int, error) {
	if len(data)%NoteSize != 0 {
		return nil, fmt.Errorf("%w: notes payload is %d bytes, not a multiple of %d", ErrShortPayload, len(data), NoteSize)
	}
	freqs := make([]int, 0, len(data)/NoteSize)
	for i := 0; i < len(data); i += NoteSize {
		freqs = append(freqs, int(binary.LittleEndian.Uint16(data[i:i+NoteSize])))
	}
	return freqs, nil
}

func clampByte(v int) byte {
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint8:
		return math.MaxUint8
	}
	return byte(v)
}

func clampUint16(v int) uint16 {
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}
