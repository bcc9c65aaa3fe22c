// Package config reads and writes engine state as JSON files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/cbegin/theremin-go/internal/music"
	"github.com/cbegin/theremin-go/internal/synth"
)

// File is the on-disk record of an engine's global settings, harmonics and
// groups.
type File struct {
	MinFreq              float64          `json:"min_freq"`
	MaxFreq              float64          `json:"max_freq"`
	GlobalAmpSmoothing   float64          `json:"global_amp_smoothing"`
	GlobalPitchSmoothing float64          `json:"global_pitch_smoothing"`
	StepsPerOctave       int              `json:"steps_per_octave,omitempty"`
	Harmonics            []Harmonic       `json:"harmonics"`
	Groups               map[string]Group `json:"groups,omitempty"`
}

type Harmonic struct {
	Multiplier     float64 `json:"multiplier"`
	Amplitude      float64 `json:"amplitude"`
	AmpSmoothing   float64 `json:"amp_smoothing"`
	PitchSmoothing float64 `json:"pitch_smoothing"`
	SnapEnabled    bool    `json:"snap_enabled"`
	TriggerKey     string  `json:"trigger_key"`
}

// UnmarshalJSON fills fields missing from the record with the defaults used
// by AddHarmonic. A null trigger key means the harmonic has no key.
func (h *Harmonic) UnmarshalJSON(data []byte) error {
	type plain Harmonic
	v := plain{
		Amplitude:      1,
		AmpSmoothing:   synth.DefaultHarmonicAmpSmoothingMs,
		PitchSmoothing: synth.DefaultHarmonicPitchSmoothingMs,
		TriggerKey:     synth.DefaultTriggerKey,
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["trigger_key"]; ok && isNull(raw) {
		v.TriggerKey = ""
	}
	*h = Harmonic(v)
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

type Group struct {
	TriggerKey string    `json:"trigger_key"`
	Harmonics  []float64 `json:"harmonics"`
}

// Default returns the record of an empty engine with default parameters.
func Default() *File {
	p := synth.DefaultParams()
	return &File{
		MinFreq:              p.MinFreq,
		MaxFreq:              p.MaxFreq,
		GlobalAmpSmoothing:   p.GlobalAmpSmoothingMs,
		GlobalPitchSmoothing: p.GlobalPitchSmoothingMs,
		StepsPerOctave:       int(p.Grid),
	}
}

// Capture records the current state of e.
func Capture(e *synth.Engine) *File {
	lo, hi := e.FrequencyRange()
	f := &File{
		MinFreq:              lo,
		MaxFreq:              hi,
		GlobalAmpSmoothing:   e.GlobalAmpSmoothing(),
		GlobalPitchSmoothing: e.GlobalPitchSmoothing(),
		StepsPerOctave:       int(e.Grid()),
	}
	for _, h := range e.Harmonics() {
		f.Harmonics = append(f.Harmonics, Harmonic{
			Multiplier:     h.Multiplier,
			Amplitude:      h.Amplitude,
			AmpSmoothing:   h.AmpSmoothingMs,
			PitchSmoothing: h.PitchSmoothingMs,
			SnapEnabled:    h.SnapEnabled,
			TriggerKey:     h.TriggerKey,
		})
	}
	for _, g := range e.Groups() {
		if f.Groups == nil {
			f.Groups = make(map[string]Group)
		}
		f.Groups[g.Name] = Group{TriggerKey: g.TriggerKey, Harmonics: append([]float64{}, g.Members...)}
	}
	return f
}

// Apply replaces the state of e with f. The engine is cleared, then globals,
// empty groups, harmonics and finally group membership are restored. Group
// members that name no harmonic in f are dropped. An invalid frequency range
// or group name is rejected before anything changes.
func Apply(e *synth.Engine, f *File) error {
	if f == nil {
		return fault.Wrap(errors.New("nil config"), ftag.With(ftag.InvalidArgument))
	}
	if !(f.MinFreq > 0 && f.MaxFreq > f.MinFreq) {
		return fault.Wrap(synth.ErrInvalidRange,
			fmsg.WithDesc("invalid frequency range", "The configured minimum frequency must be positive and below the maximum."),
			ftag.With(ftag.InvalidArgument))
	}
	names := make([]string, 0, len(f.Groups))
	for name := range f.Groups {
		if name == "" {
			return fault.Wrap(synth.ErrInvalidValue,
				fmsg.WithDesc("empty group name", "Every configured group needs a name."),
				ftag.With(ftag.InvalidArgument))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	e.Clear()
	if err := e.SetFrequencyRange(f.MinFreq, f.MaxFreq); err != nil {
		return fault.Wrap(err, ftag.With(ftag.InvalidArgument))
	}
	_ = e.SetGlobalAmpSmoothing(f.GlobalAmpSmoothing)
	_ = e.SetGlobalPitchSmoothing(f.GlobalPitchSmoothing)
	if f.StepsPerOctave > 0 {
		e.SetGrid(music.Grid(f.StepsPerOctave))
	}

	for _, name := range names {
		if err := e.CreateGroup(name, f.Groups[name].TriggerKey); err != nil {
			return fault.Wrap(err, fmsg.With("restore group "+name), ftag.With(ftag.InvalidArgument))
		}
	}

	for _, h := range f.Harmonics {
		e.AddHarmonic(h.Multiplier,
			synth.WithAmplitude(h.Amplitude),
			synth.WithAmpSmoothing(h.AmpSmoothing),
			synth.WithPitchSmoothing(h.PitchSmoothing),
			synth.WithSnap(h.SnapEnabled),
			synth.WithTriggerKey(h.TriggerKey),
		)
	}

	for _, name := range names {
		for _, m := range f.Groups[name].Harmonics {
			err := e.AssignToGroup(m, name)
			if err != nil && !errors.Is(err, synth.ErrHarmonicNotFound) {
				return fault.Wrap(err, fmsg.With("restore group "+name), ftag.With(ftag.Internal))
			}
		}
	}
	return nil
}

// Load reads a record from path. Missing fields take their defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		kind := ftag.Internal
		if errors.Is(err, fs.ErrNotExist) {
			kind = ftag.NotFound
		}
		return nil, fault.Wrap(err,
			fmsg.WithDesc("read config", "Could not read configuration file "+path),
			ftag.With(kind))
	}
	f := Default()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("decode config", "Configuration file "+path+" is not valid JSON"),
			ftag.With(ftag.InvalidArgument))
	}
	return f, nil
}

// Save writes f to path as indented JSON.
func Save(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "    ")
	if err != nil {
		return fault.Wrap(err, fmsg.With("encode config"), ftag.With(ftag.Internal))
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fault.Wrap(err,
			fmsg.WithDesc("write config", "Could not write configuration file "+path),
			ftag.With(ftag.Internal))
	}
	return nil
}

// LoadInto reads path and applies it to e.
func LoadInto(e *synth.Engine, path string) error {
	f, err := Load(path)
	if err != nil {
		return err
	}
	return Apply(e, f)
}

// SaveFrom captures e and writes it to path.
func SaveFrom(e *synth.Engine, path string) error {
	return Save(path, Capture(e))
}
