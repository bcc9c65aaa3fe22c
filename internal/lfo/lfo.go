// Package lfo provides low-frequency modulators for scripted pointer motion.
package lfo

import (
	"fmt"
	"math"
	"strings"
)

type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Square
	Saw
)

// ParseWaveform accepts sine, triangle, square or saw.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sine":
		return Sine, nil
	case "triangle", "tri":
		return Triangle, nil
	case "square":
		return Square, nil
	case "saw":
		return Saw, nil
	default:
		return Sine, fmt.Errorf("unknown waveform %q", s)
	}
}

// LFO is a stateless oscillator evaluated at absolute times, so offline
// renders sample it once per block without accumulating drift.
type LFO struct {
	Depth    float64
	RateHz   float64
	Waveform Waveform
}

// Active reports whether the LFO produces any modulation.
func (l LFO) Active() bool {
	return l.Depth != 0 && l.RateHz > 0
}

// At returns the modulation value in [-Depth, Depth] at time t seconds.
func (l LFO) At(t float64) float64 {
	if !l.Active() {
		return 0
	}
	phase := t * l.RateHz
	phase -= math.Floor(phase)
	var v float64
	switch l.Waveform {
	case Triangle:
		// Starts at 0 and rises, like the sine.
		switch {
		case phase < 0.25:
			v = 4 * phase
		case phase < 0.75:
			v = 2 - 4*phase
		default:
			v = 4*phase - 4
		}
	case Square:
		v = 1
		if phase >= 0.5 {
			v = -1
		}
	case Saw:
		v = 2*phase - 1
	default:
		v = math.Sin(2 * math.Pi * phase)
	}
	return v * l.Depth
}
