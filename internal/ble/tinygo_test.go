//go:build linux || darwin || windows

package ble

import (
	"math"
	"testing"
	"time"

	"tinygo.org/x/bluetooth"
)

func TestConnectionTimeoutClamps(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want bluetooth.Duration
	}{
		{"negative", -time.Second, 0},
		{"within range", time.Second, bluetooth.NewDuration(time.Second)},
		{"at limit", maxConnectionTimeout, bluetooth.Duration(math.MaxUint16)},
		{"beyond limit", time.Minute, bluetooth.Duration(math.MaxUint16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := connectionTimeout(tt.in); got != tt.want {
				t.Errorf("connectionTimeout(%s) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestTinyGoConnectionDropBeforeRegister(t *testing.T) {
	c := &tinyGoConnection{}
	c.fireDisconnect()

	calls := 0
	c.OnDisconnect(func() { calls++ })
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1 for a drop seen before registration", calls)
	}
}

func TestTinyGoConnectionDropAfterRegister(t *testing.T) {
	c := &tinyGoConnection{}
	calls := 0
	c.OnDisconnect(func() { calls++ })
	if calls != 0 {
		t.Fatalf("callback ran on registration without a drop")
	}
	c.fireDisconnect()
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}
