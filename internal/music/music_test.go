package music

import (
	"math"
	"testing"
)

func TestSnapFrequencyIdempotent(t *testing.T) {
	for _, g := range []Grid{Octaves, Semitones, QuarterTones} {
		for f := 20.0; f < 20000; f *= 1.037 {
			once := SnapFrequency(f, g)
			twice := SnapFrequency(once, g)
			if math.Abs(once-twice) > 1e-9*once {
				t.Fatalf("grid %d: snap(snap(%f)) = %f, want %f", g, f, twice, once)
			}
		}
	}
}

func TestSnapFrequencyPassesThroughNonPositive(t *testing.T) {
	for _, f := range []float64{0, -1, -440} {
		if got := SnapFrequency(f, Semitones); got != f {
			t.Fatalf("snap(%f) = %f, want unchanged", f, got)
		}
		if _, ok := NoteFromFrequency(f, Semitones); ok {
			t.Fatalf("note(%f) should be none", f)
		}
	}
}

func TestSnapFrequencyHitsA4(t *testing.T) {
	for _, f := range []float64{435, 440, 446} {
		if got := Snap(f); math.Abs(got-440) > 1e-9 {
			t.Fatalf("snap(%f) = %f, want 440", f, got)
		}
	}
	// Quarter-tone grid keeps the half-way point between A4 and A#4.
	qt := 440 * math.Pow(2, 1.0/24)
	if got := SnapFrequency(qt*1.001, QuarterTones); math.Abs(got-qt) > 1e-9 {
		t.Fatalf("quarter-tone snap = %f, want %f", got, qt)
	}
}

func TestSnapToOctaveLandsOnC(t *testing.T) {
	got := SnapToOctave(250)
	want := C0 * 16
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("octave snap = %f, want %f", got, want)
	}
}

func TestNoteFromFrequency(t *testing.T) {
	cases := []struct {
		f    float64
		g    Grid
		want string
	}{
		{440, Semitones, "A4"},
		{261.63, Semitones, "C4"},
		{C0, Semitones, "C0"},
		{466.16, Semitones, "A#4"},
		{440, QuarterTones, "A4"},
		{440 * math.Pow(2, 1.0/24), QuarterTones, "A↑4"},
		{250, Octaves, "C4"},
		{C0 / 2, Semitones, "C-1"},
	}
	for _, tc := range cases {
		n, ok := NoteFromFrequency(tc.f, tc.g)
		if !ok {
			t.Fatalf("note(%f) returned none", tc.f)
		}
		if n.String() != tc.want {
			t.Errorf("note(%f, %d) = %s, want %s", tc.f, tc.g, n, tc.want)
		}
	}
}

func TestNoteCentsOffset(t *testing.T) {
	n, _ := NoteFromFrequency(440*math.Pow(2, 10.0/1200), Semitones)
	if math.Abs(n.Cents-10) > 1e-6 {
		t.Fatalf("cents = %f, want 10", n.Cents)
	}
}

func TestLogScaleRoundTrip(t *testing.T) {
	for _, r := range [][2]float64{{20, 20000}, {1, 3000}, {55, 1760}} {
		for v := 0.0; v <= 1.0; v += 0.05 {
			f := LogScale(v, r[0], r[1])
			if got := InvLogScale(f, r[0], r[1]); math.Abs(got-v) > 1e-9 {
				t.Fatalf("inv(log(%f)) = %f for range %v", v, got, r)
			}
		}
	}
	if got := LogScale(0, 20, 20000); math.Abs(got-20) > 1e-9 {
		t.Fatalf("log(0) = %f, want 20", got)
	}
	if got := LogScale(1, 20, 20000); math.Abs(got-20000) > 1e-6 {
		t.Fatalf("log(1) = %f, want 20000", got)
	}
}
