package synth

import (
	"math"
	"sync/atomic"
)

// Harmonic is a point-in-time copy of one harmonic's parameters.
type Harmonic struct {
	Multiplier       float64
	Amplitude        float64
	AmpSmoothingMs   float64
	PitchSmoothingMs float64
	SnapEnabled      bool
	TriggerKey       string
	Group            string

	// Most recently rendered frequency and envelope level.
	CurrentFreq float64
	CurrentAmp  float64
}

// HarmonicOption configures a harmonic created by AddHarmonic.
type HarmonicOption func(*harmonicConfig)

type harmonicConfig struct {
	amp         float64
	ampSmooth   float64
	pitchSmooth float64
	snap        bool
	key         string
}

func defaultHarmonicConfig() harmonicConfig {
	return harmonicConfig{
		amp:         1,
		ampSmooth:   DefaultHarmonicAmpSmoothingMs,
		pitchSmooth: DefaultHarmonicPitchSmoothingMs,
		key:         DefaultTriggerKey,
	}
}

func WithAmplitude(amp float64) HarmonicOption {
	return func(c *harmonicConfig) { c.amp = amp }
}

func WithAmpSmoothing(ms float64) HarmonicOption {
	return func(c *harmonicConfig) { c.ampSmooth = ms }
}

func WithPitchSmoothing(ms float64) HarmonicOption {
	return func(c *harmonicConfig) { c.pitchSmooth = ms }
}

func WithSnap(enabled bool) HarmonicOption {
	return func(c *harmonicConfig) { c.snap = enabled }
}

// WithTriggerKey sets the individual trigger. An empty key means the
// harmonic only sounds through its group.
func WithTriggerKey(key string) HarmonicOption {
	return func(c *harmonicConfig) { c.key = key }
}

// voice is the live record behind a harmonic. Stable parameters are atomics
// so setters never race the render thread; key and group are guarded by
// Engine.mu and reach the render thread only through snapshots.
type voice struct {
	mult        uint64
	amp         uint64
	ampSmooth   uint64
	pitchSmooth uint64
	snap        atomic.Bool

	key   string
	group *group

	// Render-thread state.
	phase     float64
	curAmp    float64
	tgtAmp    float64
	curFreq   float64
	tgtFreq   float64
	triggered bool

	viewFreq uint64
	viewAmp  uint64
}

func newVoice(mult float64, cfg harmonicConfig) *voice {
	v := &voice{key: cfg.key}
	v.setMultiplier(mult)
	v.setAmplitude(cfg.amp)
	v.setAmpSmoothing(cfg.ampSmooth)
	v.setPitchSmoothing(cfg.pitchSmooth)
	v.snap.Store(cfg.snap)
	return v
}

func (v *voice) multiplier() float64 { return loadFloat(&v.mult) }
func (v *voice) amplitude() float64  { return loadFloat(&v.amp) }
func (v *voice) ampSmoothing() float64 {
	return loadFloat(&v.ampSmooth)
}
func (v *voice) pitchSmoothing() float64 {
	return loadFloat(&v.pitchSmooth)
}

func (v *voice) setMultiplier(m float64) { storeFloat(&v.mult, m) }
func (v *voice) setAmplitude(a float64)  { storeFloat(&v.amp, clamp(a, 0, 1)) }
func (v *voice) setAmpSmoothing(ms float64) {
	storeFloat(&v.ampSmooth, math.Max(0, ms))
}
func (v *voice) setPitchSmoothing(ms float64) {
	storeFloat(&v.pitchSmooth, math.Max(0, ms))
}

func (v *voice) publish() {
	storeFloat(&v.viewFreq, v.curFreq)
	storeFloat(&v.viewAmp, v.curAmp)
}

// view must be called with Engine.mu held.
func (v *voice) view() Harmonic {
	h := Harmonic{
		Multiplier:       v.multiplier(),
		Amplitude:        v.amplitude(),
		AmpSmoothingMs:   v.ampSmoothing(),
		PitchSmoothingMs: v.pitchSmoothing(),
		SnapEnabled:      v.snap.Load(),
		TriggerKey:       v.key,
		CurrentFreq:      loadFloat(&v.viewFreq),
		CurrentAmp:       loadFloat(&v.viewAmp),
	}
	if v.group != nil {
		h.Group = v.group.name
	}
	return h
}

func loadFloat(p *uint64) float64 {
	return math.Float64frombits(atomic.LoadUint64(p))
}

func storeFloat(p *uint64, v float64) {
	atomic.StoreUint64(p, math.Float64bits(v))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func validMultiplier(m float64) bool {
	return m > 0 && !math.IsInf(m, 1)
}
