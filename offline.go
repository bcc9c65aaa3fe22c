package theremin

import (
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	intinput "github.com/cbegin/theremin-go/internal/input"
	"github.com/cbegin/theremin-go/internal/lfo"
	"github.com/cbegin/theremin-go/internal/synth"
)

// DefaultBlockFrames is the block size used for offline rendering.
const DefaultBlockFrames = 256

// OfflineRenderer drives an engine faster than real time. Trigger polling is
// timed by the number of rendered samples instead of the wall clock, so
// renders are deterministic.
type OfflineRenderer struct {
	sampleRate int
	state      *intinput.State
	engine     *synth.Engine
	epoch      time.Time
	frames     int64
}

func NewOfflineRenderer(sampleRate int, params synth.Params) *OfflineRenderer {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	r := &OfflineRenderer{
		sampleRate: sampleRate,
		state:      intinput.NewState(1920, 1080),
		epoch:      time.Unix(0, 0),
	}
	r.engine = synth.New(sampleRate, params, r.state)
	r.engine.SetClock(r.now)
	return r
}

func (r *OfflineRenderer) now() time.Time {
	return r.epoch.Add(time.Duration(r.frames) * time.Second / time.Duration(r.sampleRate))
}

func (r *OfflineRenderer) Engine() *synth.Engine { return r.engine }

func (r *OfflineRenderer) Input() *intinput.State { return r.state }

// Elapsed returns the rendered duration.
func (r *OfflineRenderer) Elapsed() time.Duration {
	return r.now().Sub(r.epoch)
}

// Render produces n mono samples in blocks of DefaultBlockFrames.
func (r *OfflineRenderer) Render(n int) []float32 {
	if n < 0 {
		n = 0
	}
	out := make([]float32, n)
	for off := 0; off < n; off += DefaultBlockFrames {
		end := min(off+DefaultBlockFrames, n)
		r.engine.Process(out[off:end])
		r.frames += int64(end - off)
	}
	return out
}

// Script describes pointer motion and held keys over time. Pointer and Keys
// are sampled once per block with the block's start time in seconds.
type Script struct {
	Seconds     float64
	BlockFrames int
	Pointer     func(t float64) (x, y float64)
	Keys        func(t float64) []string
}

// RenderScript renders s.Seconds of audio while following the script.
func (r *OfflineRenderer) RenderScript(s Script) []float32 {
	block := s.BlockFrames
	if block <= 0 {
		block = DefaultBlockFrames
	}
	total := int(float64(r.sampleRate) * s.Seconds)
	if total < 0 {
		total = 0
	}
	out := make([]float32, total)
	for off := 0; off < total; off += block {
		t := float64(off) / float64(r.sampleRate)
		if s.Pointer != nil {
			r.state.SetPointer(s.Pointer(t))
		}
		if s.Keys != nil {
			r.state.SetPressed(s.Keys(t))
		}
		end := min(off+block, total)
		r.engine.Process(out[off:end])
		r.frames += int64(end - off)
	}
	return out
}

// Sweep returns a script that glides the pointer linearly across the screen
// at full height while holding keys.
func Sweep(seconds float64, width, height float64, keys ...string) Script {
	return Script{
		Seconds: seconds,
		Pointer: func(t float64) (float64, float64) {
			return width * math.Min(t/seconds, 1), height
		},
		Keys: func(float64) []string { return keys },
	}
}

// WithVibrato returns a copy of s whose pointer X is modulated by l. The
// LFO depth is a fraction of width.
func (s Script) WithVibrato(l lfo.LFO, width float64) Script {
	if !l.Active() {
		return s
	}
	base := s.Pointer
	s.Pointer = func(t float64) (float64, float64) {
		var x, y float64
		if base != nil {
			x, y = base(t)
		}
		return x + l.At(t)*width, y
	}
	return s
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}

// WriteWAV encodes mono samples as 16-bit PCM. Samples outside [-1, 1] are
// clipped.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * 32767))
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: 1,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
