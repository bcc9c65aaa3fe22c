package theremin

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/cbegin/theremin-go/internal/analysis"
	"github.com/cbegin/theremin-go/internal/lfo"
	"github.com/cbegin/theremin-go/internal/synth"
)

func TestDominantFrequencyMatchesPointer(t *testing.T) {
	cases := []struct {
		name string
		x    float64
		mult float64
	}{
		{"centre fundamental", 960, 1},
		{"centre octave", 960, 2},
		{"left edge fifth", 0, 3},
		{"three quarters", 1440, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewOfflineRenderer(48000, synth.DefaultParams())
			r.Engine().AddHarmonic(tc.mult)
			r.Input().SetPointer(tc.x, 1080)
			r.Input().SetTrigger("space", true)
			out := r.Render(48000)
			base := 55 * math.Pow(1760.0/55, tc.x/1920)
			want := base * tc.mult
			got := analysis.DominantFrequency(out[len(out)-8192:], 48000)
			if math.Abs(got-want) > 48000.0/8192 {
				t.Fatalf("dominant = %v, want %v", got, want)
			}
		})
	}
}

func TestLouderHarmonicDominates(t *testing.T) {
	r := NewOfflineRenderer(48000, synth.DefaultParams())
	r.Engine().AddHarmonic(1, synth.WithAmplitude(0.2))
	r.Engine().AddHarmonic(3, synth.WithAmplitude(0.9))
	r.Input().SetTrigger("space", true)
	out := r.Render(24000)
	want := 3 * math.Sqrt(55*1760)
	if got := analysis.DominantFrequency(out[len(out)-8192:], 48000); math.Abs(got-want) > 6 {
		t.Fatalf("dominant = %v, want %v", got, want)
	}
}

func TestRenderScriptIsDeterministic(t *testing.T) {
	render := func() []float32 {
		r := NewOfflineRenderer(44100, synth.DefaultParams())
		r.Engine().AddHarmonic(1)
		r.Engine().AddHarmonic(2, synth.WithAmplitude(0.5))
		return r.RenderScript(Sweep(0.5, 1920, 1080, "space"))
	}
	a, b := render(), render()
	if len(a) != 22050 {
		t.Fatalf("rendered %d samples, want 22050", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
	if analysis.RMS(a) == 0 {
		t.Fatal("sweep should be audible")
	}
}

func TestRenderScriptReleasesKeys(t *testing.T) {
	r := NewOfflineRenderer(48000, synth.DefaultParams())
	r.Engine().AddHarmonic(1)
	out := r.RenderScript(Script{
		Seconds: 2,
		Keys: func(t float64) []string {
			if t < 0.5 {
				return []string{"space"}
			}
			return nil
		},
	})
	head := analysis.RMS(out[12000:24000])
	tail := analysis.RMS(out[len(out)-4800:])
	if head == 0 || tail > head*1e-3 {
		t.Fatalf("release did not fade: head %v tail %v", head, tail)
	}
	if r.Elapsed().Seconds() != 2 {
		t.Fatalf("elapsed = %v", r.Elapsed())
	}
}

func TestWithVibratoModulatesPointer(t *testing.T) {
	s := Script{Seconds: 1, Pointer: func(float64) (float64, float64) { return 960, 500 }}
	v := s.WithVibrato(lfo.LFO{Depth: 0.01, RateHz: 1, Waveform: lfo.Square}, 1920)
	if x, y := v.Pointer(0.1); math.Abs(x-979.2) > 1e-9 || y != 500 {
		t.Fatalf("pointer = %v, %v", x, y)
	}
	if x, _ := v.Pointer(0.6); math.Abs(x-940.8) > 1e-9 {
		t.Fatalf("pointer x = %v", x)
	}
	if x, _ := s.Pointer(0.1); x != 960 {
		t.Fatal("original script should be unchanged")
	}
	same := s.WithVibrato(lfo.LFO{}, 1920)
	if x, _ := same.Pointer(0.1); x != 960 {
		t.Fatalf("inactive vibrato moved pointer to %v", x)
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1, 2, -2}
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteWAV(f, samples, 22050); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	in, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		t.Fatal("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Format.SampleRate != 22050 || buf.Format.NumChannels != 1 {
		t.Fatalf("format = %+v", buf.Format)
	}
	want := []int{0, 16384, -16384, 32767, -32767, 32767, -32767}
	if len(buf.Data) != len(want) {
		t.Fatalf("decoded %d samples", len(buf.Data))
	}
	for i := range want {
		if buf.Data[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], want[i])
		}
	}
}

func TestEncodeWAVFloat32LEHeader(t *testing.T) {
	wavBytes := EncodeWAVFloat32LE([]float32{0.25, -0.25}, 48000, 1)
	if len(wavBytes) != 52 || string(wavBytes[:4]) != "RIFF" || string(wavBytes[8:12]) != "WAVE" {
		t.Fatalf("bad header: % x", wavBytes[:12])
	}
	if format := binary.LittleEndian.Uint16(wavBytes[20:]); format != 3 {
		t.Fatalf("format = %d, want IEEE float", format)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(wavBytes[48:])); got != -0.25 {
		t.Fatalf("second sample = %v", got)
	}
}
