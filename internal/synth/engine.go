package synth

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/theremin-go/internal/music"
)

// Engine is an additive sine synthesizer driven by pointer position and
// trigger state. Control methods may be called from any goroutine; Process
// must only be called from the audio thread.
type Engine struct {
	sampleRate float64
	input      Input
	now        func() time.Time

	mu       sync.Mutex
	voices   []*voice
	byMult   map[float64]*voice
	groups   []*group
	byName   map[string]*group
	snap     atomic.Pointer[snapshot]
	freqs    atomic.Pointer[freqRange]
	ampTau   uint64
	pitchTau uint64
	pollMs   uint64
	grid     atomic.Int64
	glide    atomic.Bool

	// Render-thread state.
	lastPoll time.Time
	polled   bool
	baseAmp  float64
	env      []float64
}

type freqRange struct {
	min, max float64
}

// snapshot is the immutable structure the render thread iterates. Trigger
// keys are resolved to indexes into keys; -1 means no trigger.
type snapshot struct {
	voices []voiceEntry
	groups []groupEntry
	keys   []string
	// active is render-thread scratch for one poll.
	active []bool
}

type voiceEntry struct {
	v       *voice
	key     int
	grouped bool
}

type groupEntry struct {
	key     int
	members []*voice
}

func New(sampleRate int, params Params, in Input) *Engine {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if in == nil {
		in = nopInput{}
	}
	def := DefaultParams()
	if !(params.MinFreq > 0 && params.MaxFreq > params.MinFreq) || math.IsInf(params.MaxFreq, 1) {
		params.MinFreq, params.MaxFreq = def.MinFreq, def.MaxFreq
	}
	if params.Grid <= 0 {
		params.Grid = def.Grid
	}
	if params.MaxBlockFrames <= 0 {
		params.MaxBlockFrames = def.MaxBlockFrames
	}
	e := &Engine{
		sampleRate: float64(sampleRate),
		input:      in,
		now:        time.Now,
		byMult:     make(map[float64]*voice),
		byName:     make(map[string]*group),
		env:        make([]float64, params.MaxBlockFrames),
	}
	e.freqs.Store(&freqRange{min: params.MinFreq, max: params.MaxFreq})
	storeFloat(&e.ampTau, orDefault(params.GlobalAmpSmoothingMs, def.GlobalAmpSmoothingMs))
	storeFloat(&e.pitchTau, orDefault(params.GlobalPitchSmoothingMs, def.GlobalPitchSmoothingMs))
	storeFloat(&e.pollMs, orDefault(params.TriggerPollIntervalMs, def.TriggerPollIntervalMs))
	e.grid.Store(int64(params.Grid))
	e.glide.Store(params.SampleAccurateGlide)
	e.snap.Store(&snapshot{})
	return e
}

// orDefault clamps ms to be non-negative and replaces NaN with def.
func orDefault(ms, def float64) float64 {
	if math.IsNaN(ms) {
		return def
	}
	return math.Max(0, ms)
}

// SetClock replaces the time source used to throttle trigger polling. It must
// be called before rendering starts.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

func (e *Engine) SampleRate() int { return int(e.sampleRate) }

func (e *Engine) Input() Input { return e.input }

// AddHarmonic appends a harmonic at multiplier m. Duplicate or invalid
// multipliers are ignored; the return value reports whether one was added.
func (e *Engine) AddHarmonic(m float64, opts ...HarmonicOption) bool {
	if !validMultiplier(m) {
		return false
	}
	cfg := defaultHarmonicConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if math.IsNaN(cfg.amp) {
		cfg.amp = 1
	}
	if math.IsNaN(cfg.ampSmooth) {
		cfg.ampSmooth = DefaultHarmonicAmpSmoothingMs
	}
	if math.IsNaN(cfg.pitchSmooth) {
		cfg.pitchSmooth = DefaultHarmonicPitchSmoothingMs
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byMult[m]; ok {
		return false
	}
	v := newVoice(m, cfg)
	e.voices = append(e.voices, v)
	e.byMult[m] = v
	e.publish()
	return true
}

// RemoveHarmonic deletes the harmonic at m and detaches it from its group.
func (e *Engine) RemoveHarmonic(m float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.byMult[m]
	if !ok {
		return
	}
	if v.group != nil {
		v.group.remove(v)
	}
	delete(e.byMult, m)
	for i, x := range e.voices {
		if x == v {
			e.voices = append(e.voices[:i:i], e.voices[i+1:]...)
			break
		}
	}
	e.publish()
}

// UpdateHarmonicMultiplier re-keys a harmonic, keeping its parameters,
// synthesis state and group membership.
func (e *Engine) UpdateHarmonicMultiplier(old, next float64) error {
	if !validMultiplier(next) {
		return fmt.Errorf("multiplier %v: %w", next, ErrInvalidValue)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.byMult[old]
	if !ok {
		return fmt.Errorf("multiplier %v: %w", old, ErrHarmonicNotFound)
	}
	if old == next {
		return nil
	}
	if _, ok := e.byMult[next]; ok {
		return fmt.Errorf("multiplier %v: %w", next, ErrHarmonicExists)
	}
	delete(e.byMult, old)
	e.byMult[next] = v
	v.setMultiplier(next)
	return nil
}

func (e *Engine) SetHarmonicAmp(m, amp float64) error {
	return e.withVoice(m, amp, func(v *voice) { v.setAmplitude(amp) })
}

func (e *Engine) SetHarmonicAmpSmoothing(m, ms float64) error {
	return e.withVoice(m, ms, func(v *voice) { v.setAmpSmoothing(ms) })
}

func (e *Engine) SetHarmonicPitchSmoothing(m, ms float64) error {
	return e.withVoice(m, ms, func(v *voice) { v.setPitchSmoothing(ms) })
}

func (e *Engine) SetHarmonicSnap(m float64, enabled bool) error {
	return e.withVoice(m, 0, func(v *voice) { v.snap.Store(enabled) })
}

// SetHarmonicKey changes the individual trigger of the harmonic at m.
func (e *Engine) SetHarmonicKey(m float64, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.byMult[m]
	if !ok {
		return fmt.Errorf("multiplier %v: %w", m, ErrHarmonicNotFound)
	}
	v.key = key
	e.publish()
	return nil
}

func (e *Engine) withVoice(m, value float64, fn func(*voice)) error {
	if math.IsNaN(value) {
		return ErrInvalidValue
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.byMult[m]
	if !ok {
		return fmt.Errorf("multiplier %v: %w", m, ErrHarmonicNotFound)
	}
	fn(v)
	return nil
}

// Harmonic returns a copy of the harmonic at m.
func (e *Engine) Harmonic(m float64) (Harmonic, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.byMult[m]
	if !ok {
		return Harmonic{}, false
	}
	return v.view(), true
}

// Harmonics returns all harmonics in insertion order.
func (e *Engine) Harmonics() []Harmonic {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Harmonic, len(e.voices))
	for i, v := range e.voices {
		out[i] = v.view()
	}
	return out
}

func (e *Engine) HarmonicCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

// CreateGroup adds an empty group and attaches the given members. Members
// that do not name a live harmonic are skipped.
func (e *Engine) CreateGroup(name, key string, members ...float64) error {
	if name == "" {
		return fmt.Errorf("group name: %w", ErrInvalidValue)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byName[name]; ok {
		return fmt.Errorf("group %q: %w", name, ErrGroupExists)
	}
	g := &group{name: name, key: key}
	e.groups = append(e.groups, g)
	e.byName[name] = g
	for _, m := range members {
		if v, ok := e.byMult[m]; ok {
			e.attach(v, g)
		}
	}
	e.publish()
	return nil
}

// AssignToGroup moves the harmonic at m into the named group.
func (e *Engine) AssignToGroup(m float64, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.byName[name]
	if !ok {
		return fmt.Errorf("group %q: %w", name, ErrGroupNotFound)
	}
	v, ok := e.byMult[m]
	if !ok {
		return fmt.Errorf("multiplier %v: %w", m, ErrHarmonicNotFound)
	}
	e.attach(v, g)
	e.publish()
	return nil
}

// RemoveFromGroup detaches the harmonic at m from its group.
func (e *Engine) RemoveFromGroup(m float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.byMult[m]
	if !ok {
		return fmt.Errorf("multiplier %v: %w", m, ErrHarmonicNotFound)
	}
	if v.group == nil {
		return fmt.Errorf("multiplier %v has no group: %w", m, ErrGroupNotFound)
	}
	v.group.remove(v)
	e.publish()
	return nil
}

// RemoveGroup detaches all members and deletes the group.
func (e *Engine) RemoveGroup(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.byName[name]
	if !ok {
		return fmt.Errorf("group %q: %w", name, ErrGroupNotFound)
	}
	for _, v := range g.members {
		v.group = nil
	}
	g.members = nil
	delete(e.byName, name)
	for i, x := range e.groups {
		if x == g {
			e.groups = append(e.groups[:i:i], e.groups[i+1:]...)
			break
		}
	}
	e.publish()
	return nil
}

func (e *Engine) SetGroupKey(name, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.byName[name]
	if !ok {
		return fmt.Errorf("group %q: %w", name, ErrGroupNotFound)
	}
	g.key = key
	e.publish()
	return nil
}

// CopyGroup creates group dst with src's trigger and a copy of every member
// harmonic, each placed at the next free multiplier above the original.
func (e *Engine) CopyGroup(src, dst string) error {
	if dst == "" {
		return fmt.Errorf("group name: %w", ErrInvalidValue)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	from, ok := e.byName[src]
	if !ok {
		return fmt.Errorf("group %q: %w", src, ErrGroupNotFound)
	}
	if _, ok := e.byName[dst]; ok {
		return fmt.Errorf("group %q: %w", dst, ErrGroupExists)
	}
	to := &group{name: dst, key: from.key}
	e.groups = append(e.groups, to)
	e.byName[dst] = to
	for _, orig := range append([]*voice(nil), from.members...) {
		m := e.freeMultiplier(orig.multiplier())
		v := newVoice(m, harmonicConfig{
			amp:         orig.amplitude(),
			ampSmooth:   orig.ampSmoothing(),
			pitchSmooth: orig.pitchSmoothing(),
			snap:        orig.snap.Load(),
			key:         orig.key,
		})
		e.voices = append(e.voices, v)
		e.byMult[m] = v
		to.add(v)
	}
	e.publish()
	return nil
}

// GroupForHarmonic reports the group of the harmonic at m.
func (e *Engine) GroupForHarmonic(m float64) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.byMult[m]
	if !ok || v.group == nil {
		return "", false
	}
	return v.group.name, true
}

func (e *Engine) Group(name string) (Group, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.byName[name]
	if !ok {
		return Group{}, false
	}
	return g.view(), true
}

// Groups returns all groups in creation order.
func (e *Engine) Groups() []Group {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Group, len(e.groups))
	for i, g := range e.groups {
		out[i] = g.view()
	}
	return out
}

// Clear removes every harmonic and group.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range e.voices {
		v.group = nil
	}
	e.voices = nil
	e.groups = nil
	e.byMult = make(map[float64]*voice)
	e.byName = make(map[string]*group)
	e.publish()
}

// SetFrequencyRange sets the pointer's frequency span. The range is left
// unchanged unless 0 < lo < hi.
func (e *Engine) SetFrequencyRange(lo, hi float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setRange(lo, hi)
}

func (e *Engine) SetMinFreq(f float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setRange(f, e.freqs.Load().max)
}

func (e *Engine) SetMaxFreq(f float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setRange(e.freqs.Load().min, f)
}

func (e *Engine) setRange(lo, hi float64) error {
	if !(lo > 0 && hi > lo) || math.IsInf(hi, 1) {
		return fmt.Errorf("[%v, %v]: %w", lo, hi, ErrInvalidRange)
	}
	e.freqs.Store(&freqRange{min: lo, max: hi})
	return nil
}

func (e *Engine) FrequencyRange() (float64, float64) {
	r := e.freqs.Load()
	return r.min, r.max
}

func (e *Engine) SetGlobalAmpSmoothing(ms float64) error {
	if math.IsNaN(ms) {
		return ErrInvalidValue
	}
	storeFloat(&e.ampTau, math.Max(0, ms))
	return nil
}

func (e *Engine) GlobalAmpSmoothing() float64 { return loadFloat(&e.ampTau) }

func (e *Engine) SetGlobalPitchSmoothing(ms float64) error {
	if math.IsNaN(ms) {
		return ErrInvalidValue
	}
	storeFloat(&e.pitchTau, math.Max(0, ms))
	return nil
}

func (e *Engine) GlobalPitchSmoothing() float64 { return loadFloat(&e.pitchTau) }

// SetTriggerPollInterval sets the minimum time between trigger queries.
func (e *Engine) SetTriggerPollInterval(ms float64) error {
	if math.IsNaN(ms) {
		return ErrInvalidValue
	}
	storeFloat(&e.pollMs, math.Max(0, ms))
	return nil
}

func (e *Engine) TriggerPollInterval() float64 { return loadFloat(&e.pollMs) }

// SetGrid sets the snapping resolution in steps per octave.
func (e *Engine) SetGrid(g music.Grid) {
	if g <= 0 {
		g = music.Semitones
	}
	e.grid.Store(int64(g))
}

func (e *Engine) Grid() music.Grid { return music.Grid(e.grid.Load()) }

func (e *Engine) SetSampleAccurateGlide(enabled bool) { e.glide.Store(enabled) }

func (e *Engine) SampleAccurateGlide() bool { return e.glide.Load() }

// attach must be called with e.mu held.
func (e *Engine) attach(v *voice, g *group) {
	if v.group == g {
		return
	}
	if v.group != nil {
		v.group.remove(v)
	}
	g.add(v)
}

// freeMultiplier must be called with e.mu held.
func (e *Engine) freeMultiplier(base float64) float64 {
	m := base + 0.1
	for e.multiplierTaken(m) {
		m += 0.1
	}
	return m
}

func (e *Engine) multiplierTaken(m float64) bool {
	for _, v := range e.voices {
		if math.Abs(v.multiplier()-m) < 1e-4 {
			return true
		}
	}
	return false
}

// publish rebuilds the render snapshot. It must be called with e.mu held.
func (e *Engine) publish() {
	s := &snapshot{
		voices: make([]voiceEntry, len(e.voices)),
		groups: make([]groupEntry, 0, len(e.groups)),
	}
	index := map[string]int{}
	keyIndex := func(k string) int {
		if k == "" {
			return -1
		}
		if i, ok := index[k]; ok {
			return i
		}
		index[k] = len(s.keys)
		s.keys = append(s.keys, k)
		return index[k]
	}
	for _, g := range e.groups {
		if len(g.members) == 0 {
			continue
		}
		s.groups = append(s.groups, groupEntry{
			key:     keyIndex(g.key),
			members: append([]*voice(nil), g.members...),
		})
	}
	for i, v := range e.voices {
		ent := voiceEntry{v: v, key: -1, grouped: v.group != nil}
		if !ent.grouped {
			ent.key = keyIndex(v.key)
		}
		s.voices[i] = ent
	}
	s.active = make([]bool, len(s.keys))
	e.snap.Store(s)
}
