package synth

import (
	"math"
	"time"

	"github.com/cbegin/theremin-go/internal/music"
)

const twoPi = math.Pi * 2

// Render allocates and fills a block of n mono samples.
func (e *Engine) Render(n int) []float32 {
	if n < 0 {
		n = 0
	}
	out := make([]float32, n)
	e.Process(out)
	return out
}

// Process fills dst with len(dst) mono samples. It takes no locks and only
// allocates when a block is longer than any seen before.
func (e *Engine) Process(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(dst)
	if n == 0 {
		return
	}
	s := e.snap.Load()

	now := e.now()
	interval := time.Duration(loadFloat(&e.pollMs) * float64(time.Millisecond))
	if !e.polled || now.Sub(e.lastPoll) >= interval {
		e.poll(s)
		e.lastPoll = now
		e.polled = true
	}
	if len(s.voices) == 0 {
		return
	}

	sum := 0.0
	for _, ent := range s.voices {
		sum += ent.v.amplitude()
	}
	if sum == 0 {
		sum = 1
	}
	if cap(e.env) < n {
		e.env = make([]float64, n)
	}
	env := e.env[:n]
	globalAmp := loadFloat(&e.ampTau)
	globalPitch := loadFloat(&e.pitchTau)
	glide := e.glide.Load()

	for _, ent := range s.voices {
		v := ent.v
		gain := e.baseAmp * (v.amplitude() / sum)
		if math.IsNaN(gain) || math.IsInf(gain, 0) {
			gain = 0
		}
		ampDecay := e.decay(effective(v.ampSmoothing(), globalAmp))
		pitchDecay := e.decay(effective(v.pitchSmoothing(), globalPitch))

		v.curAmp = fillEnvelope(env, v.curAmp, v.tgtAmp, ampDecay)
		if glide {
			e.renderGlide(dst, env, v, gain, pitchDecay)
		} else {
			e.renderBlock(dst, env, v, gain, pitchDecay)
		}
		v.publish()
	}
}

// renderBlock holds the smoothed frequency constant across the block.
func (e *Engine) renderBlock(dst []float32, env []float64, v *voice, gain, decay float64) {
	n := len(dst)
	if decay > 0 {
		v.curFreq = v.tgtFreq + (v.curFreq-v.tgtFreq)*math.Pow(decay, float64(n))
	} else {
		v.curFreq = v.tgtFreq
	}
	w := twoPi * v.curFreq / e.sampleRate
	if gain != 0 {
		for i := 0; i < n; i++ {
			dst[i] += float32(env[i] * gain * math.Sin(w*float64(i)+v.phase))
		}
	}
	v.phase = wrapPhase(v.phase + w*float64(n))
}

// renderGlide smooths frequency per sample and accumulates phase per sample.
func (e *Engine) renderGlide(dst []float32, env []float64, v *voice, gain, decay float64) {
	f := v.curFreq
	ph := v.phase
	k := twoPi / e.sampleRate
	for i := range dst {
		if decay > 0 {
			f = f*decay + v.tgtFreq*(1-decay)
		} else {
			f = v.tgtFreq
		}
		if gain != 0 {
			dst[i] += float32(env[i] * gain * math.Sin(ph))
		}
		ph += k * f
		if ph >= twoPi {
			ph -= twoPi
		}
	}
	v.curFreq = f
	v.phase = wrapPhase(ph)
}

// poll resolves triggers against the current pointer position and updates
// every voice's targets.
func (e *Engine) poll(s *snapshot) {
	x, y := e.input.Pointer()
	w, h := e.input.Screen()
	r := e.freqs.Load()

	baseFreq := r.min
	if r.min > 0 && r.max > r.min && w > 0 {
		baseFreq = r.min * math.Pow(r.max/r.min, x/w)
	}
	if !finite(baseFreq) {
		baseFreq = r.min
	}
	e.baseAmp = 0
	if h > 0 {
		e.baseAmp = (y / h) / 2
	}
	if !finite(e.baseAmp) {
		e.baseAmp = 0
	}

	for i, k := range s.keys {
		s.active[i] = e.input.IsTriggerActive(k)
	}
	for _, ent := range s.voices {
		ent.v.triggered = false
	}
	grid := music.Grid(e.grid.Load())
	for _, g := range s.groups {
		if g.key < 0 || !s.active[g.key] {
			continue
		}
		for _, v := range g.members {
			trigger(v, baseFreq, grid)
		}
	}
	globalPitch := loadFloat(&e.pitchTau)
	for _, ent := range s.voices {
		v := ent.v
		if !ent.grouped && ent.key >= 0 && s.active[ent.key] {
			trigger(v, baseFreq, grid)
		}
		if !v.triggered {
			v.tgtAmp = 0
		}
		if effective(v.pitchSmoothing(), globalPitch) == 0 {
			v.curFreq = v.tgtFreq
		}
	}
}

func trigger(v *voice, baseFreq float64, grid music.Grid) {
	f := baseFreq * v.multiplier()
	if v.snap.Load() {
		f = music.SnapFrequency(f, grid)
	}
	v.tgtAmp = 1
	v.tgtFreq = f
	// A voice that has never sounded starts at its target instead of
	// gliding up from 0 Hz.
	if v.curFreq == 0 {
		v.curFreq = f
	}
	v.triggered = true
}

// fillEnvelope writes the exponential ramp from cur towards target into env
// and returns the last value. A zero decay jumps straight to target.
func fillEnvelope(env []float64, cur, target, decay float64) float64 {
	if len(env) == 0 {
		return cur
	}
	if decay <= 0 {
		for i := range env {
			env[i] = target
		}
		return target
	}
	a := cur
	for i := range env {
		env[i] = a
		a = a*decay + target*(1-decay)
	}
	return env[len(env)-1]
}

// decay returns the per-sample coefficient for a smoothing time in ms, or 0
// for instant changes.
func (e *Engine) decay(ms float64) float64 {
	if ms <= 0 {
		return 0
	}
	tau := ms / 1000
	return math.Exp(-1 / (tau * e.sampleRate))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func effective(own, global float64) float64 {
	if own > 0 {
		return own
	}
	return global
}

func wrapPhase(p float64) float64 {
	p = math.Mod(p, twoPi)
	if p < 0 {
		p += twoPi
	}
	return p
}
