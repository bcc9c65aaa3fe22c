// Package analysis measures rendered audio.
package analysis

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Spectrum returns the magnitude of the Hann-windowed FFT of samples for bins
// 0..len/2.
func Spectrum(samples []float32) []float64 {
	if len(samples) == 0 {
		return nil
	}
	x := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s)
	}
	window.Apply(x, window.Hann)
	bins := fft.FFTReal(x)
	mags := make([]float64, len(x)/2+1)
	for i := range mags {
		mags[i] = cmplx.Abs(bins[i])
	}
	return mags
}

// DominantFrequency returns the frequency of the strongest non-DC spectral
// peak, refined by parabolic interpolation. It returns 0 for silence.
func DominantFrequency(samples []float32, sampleRate int) float64 {
	peaks := Peaks(samples, sampleRate, 1)
	if len(peaks) == 0 {
		return 0
	}
	return peaks[0].Freq
}

type Peak struct {
	Freq      float64
	Magnitude float64
}

// Peaks returns up to n local spectral maxima ordered by magnitude.
func Peaks(samples []float32, sampleRate int, n int) []Peak {
	mags := Spectrum(samples)
	if len(mags) < 3 || sampleRate <= 0 || n <= 0 {
		return nil
	}
	res := float64(sampleRate) / float64(len(samples))
	var out []Peak
	for i := 1; i < len(mags)-1; i++ {
		m := mags[i]
		if m <= 1e-9 || m < mags[i-1] || m <= mags[i+1] {
			continue
		}
		out = append(out, Peak{Freq: (float64(i) + interpolate(mags[i-1], m, mags[i+1])) * res, Magnitude: m})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Magnitude > out[b].Magnitude })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// interpolate returns the offset of a parabola's vertex through three bins.
func interpolate(a, b, c float64) float64 {
	d := a - 2*b + c
	if d == 0 {
		return 0
	}
	return 0.5 * (a - c) / d
}

func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// PeakLevel returns the largest absolute sample value.
func PeakLevel(samples []float32) float64 {
	var p float64
	for _, s := range samples {
		p = math.Max(p, math.Abs(float64(s)))
	}
	return p
}
