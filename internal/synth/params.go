package synth

import (
	"errors"

	"github.com/cbegin/theremin-go/internal/music"
)

var (
	ErrHarmonicNotFound = errors.New("harmonic not found")
	ErrHarmonicExists   = errors.New("harmonic multiplier already in use")
	ErrGroupNotFound    = errors.New("group not found")
	ErrGroupExists      = errors.New("group already exists")
	ErrInvalidValue     = errors.New("invalid value")
	ErrInvalidRange     = errors.New("frequency range must satisfy 0 < min < max")
)

// Input supplies pointer coordinates and trigger state. Implementations are
// queried from the audio thread and must not block.
type Input interface {
	Pointer() (x, y float64)
	Screen() (width, height float64)
	IsTriggerActive(id string) bool
}

// DefaultTriggerKey is the trigger assigned to new harmonics.
const DefaultTriggerKey = "space"

const (
	DefaultHarmonicAmpSmoothingMs   = 100.0
	DefaultHarmonicPitchSmoothingMs = 50.0
)

type Params struct {
	MinFreq                float64
	MaxFreq                float64
	GlobalAmpSmoothingMs   float64
	GlobalPitchSmoothingMs float64
	TriggerPollIntervalMs  float64
	Grid                   music.Grid
	// SampleAccurateGlide smooths frequency per sample instead of holding the
	// smoothed frequency constant for a block.
	SampleAccurateGlide bool
	// MaxBlockFrames sizes the envelope scratch buffer so blocks up to this
	// length render without allocating.
	MaxBlockFrames int
}

// DefaultMaxBlockFrames covers a 40 ms device buffer at 96 kHz.
const DefaultMaxBlockFrames = 4096

func DefaultParams() Params {
	return Params{
		MinFreq:                55,
		MaxFreq:                1760,
		GlobalAmpSmoothingMs:   100,
		GlobalPitchSmoothingMs: 50,
		TriggerPollIntervalMs:  20,
		Grid:                   music.Semitones,
		MaxBlockFrames:         DefaultMaxBlockFrames,
	}
}

type nopInput struct{}

func (nopInput) Pointer() (float64, float64)  { return 0, 0 }
func (nopInput) Screen() (float64, float64)   { return 0, 0 }
func (nopInput) IsTriggerActive(string) bool { return false }
