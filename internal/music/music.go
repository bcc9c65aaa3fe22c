package music

import (
	"fmt"
	"math"
)

// Grid is the number of equal-tempered steps per octave used for snapping.
type Grid int

const (
	Octaves      Grid = 1
	Semitones    Grid = 12
	QuarterTones Grid = 24
)

// A4 is the tuning reference; C0 sits 4.75 octaves below it.
const A4 = 440.0

var C0 = A4 * math.Pow(2, -4.75)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// QuarterToneMark is appended to note names that sit a quarter tone above
// the named semitone.
const QuarterToneMark = "↑"

func (g Grid) steps() float64 {
	if g <= 0 {
		return float64(Semitones)
	}
	return float64(g)
}

// Snap quantizes f to the 12-TET grid.
func Snap(f float64) float64 {
	return SnapFrequency(f, Semitones)
}

// SnapToOctave quantizes f to the nearest C.
func SnapToOctave(f float64) float64 {
	return SnapFrequency(f, Octaves)
}

// SnapFrequency maps f to the nearest frequency of grid g anchored at C0.
// Non-positive and non-finite inputs are returned unchanged.
func SnapFrequency(f float64, g Grid) float64 {
	if !(f > 0) || math.IsInf(f, 1) {
		return f
	}
	n := g.steps()
	steps := math.Round(n * math.Log2(f/C0))
	return C0 * math.Pow(2, steps/n)
}

// Note is a human-readable pitch label.
type Note struct {
	Name   string
	Octave int
	// Cents is the offset of the queried frequency from the grid point.
	Cents float64
}

func (n Note) String() string {
	return fmt.Sprintf("%s%d", n.Name, n.Octave)
}

// NoteFromFrequency returns the grid note closest to f. It reports false for
// f <= 0.
func NoteFromFrequency(f float64, g Grid) (Note, bool) {
	if !(f > 0) || math.IsInf(f, 1) {
		return Note{}, false
	}
	n := g.steps()
	key := int(math.Round(n * math.Log2(f/C0)))
	snapped := C0 * math.Pow(2, float64(key)/n)
	cents := 1200 * math.Log2(f/snapped)

	if g == QuarterTones {
		semi := floorDiv(key, 2)
		name := noteNames[mod(semi, 12)]
		if mod(key, 2) == 1 {
			name += QuarterToneMark
		}
		return Note{Name: name, Octave: floorDiv(key, 24), Cents: cents}, true
	}

	semi := int(math.Round(12 * math.Log2(snapped/C0)))
	return Note{Name: noteNames[mod(semi, 12)], Octave: floorDiv(semi, 12), Cents: cents}, true
}

// LogScale maps v in [0,1] exponentially onto [lo,hi].
func LogScale(v, lo, hi float64) float64 {
	minLog := math.Log10(lo)
	maxLog := math.Log10(hi)
	return math.Pow(10, minLog+v*(maxLog-minLog))
}

// InvLogScale is the inverse of LogScale.
func InvLogScale(f, lo, hi float64) float64 {
	minLog := math.Log10(lo)
	maxLog := math.Log10(hi)
	return (math.Log10(f) - minLog) / (maxLog - minLog)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
