package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cbegin/theremin-go"
	"github.com/cbegin/theremin-go/internal/analysis"
	"github.com/cbegin/theremin-go/internal/config"
	"github.com/cbegin/theremin-go/internal/lfo"
	"github.com/cbegin/theremin-go/internal/synth"
)

const screenW, screenH = 1920.0, 1080.0

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		seconds    = flag.Float64("seconds", 4, "render length")
		outPath    = flag.String("out", "theremin.wav", "output WAV path")
		format     = flag.String("format", "pcm16", "sample format: pcm16|float32")
		configPath = flag.String("config", "", "JSON engine config to render with")
		harmonics  = flag.String("harmonics", "1,2,3", "comma-separated multipliers when no config is given")
		from       = flag.Float64("from", 0, "pointer start as a fraction of the width")
		to         = flag.Float64("to", 1, "pointer end as a fraction of the width")
		level      = flag.Float64("level", 1, "pointer height as a fraction of the screen")
		keys       = flag.String("keys", "space", "comma-separated triggers held for the whole render")
		vibRate    = flag.Float64("vibrato-rate", 0, "pointer vibrato rate in Hz (0 = off)")
		vibDepth   = flag.Float64("vibrato-depth", 0.01, "pointer vibrato depth as a fraction of the width")
		vibWave    = flag.String("vibrato-wave", "sine", "vibrato waveform: sine|triangle|square|saw")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	lvl := slog.LevelInfo
	if *debug {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

	r := theremin.NewOfflineRenderer(*sampleRate, synth.DefaultParams())
	r.Input().SetScreen(screenW, screenH)
	if *configPath != "" {
		if err := config.LoadInto(r.Engine(), *configPath); err != nil {
			log.Fatal(err)
		}
	} else {
		for _, part := range splitList(*harmonics) {
			m, err := strconv.ParseFloat(part, 64)
			if err != nil {
				log.Fatalf("invalid -harmonics entry %q", part)
			}
			r.Engine().AddHarmonic(m)
		}
	}

	wave, err := lfo.ParseWaveform(*vibWave)
	if err != nil {
		log.Fatal(err)
	}
	vibrato := lfo.LFO{Depth: *vibDepth, RateHz: *vibRate, Waveform: wave}

	held := splitList(*keys)
	script := theremin.Script{
		Seconds: *seconds,
		Pointer: func(t float64) (float64, float64) {
			frac := *from + (*to-*from)*t / *seconds
			return frac * screenW, *level * screenH
		},
		Keys: func(float64) []string { return held },
	}
	samples := r.RenderScript(script.WithVibrato(vibrato, screenW))
	slog.Debug("rendered", "samples", len(samples), "harmonics", r.Engine().HarmonicCount())

	if err := writeOutput(*outPath, *format, samples, *sampleRate); err != nil {
		log.Fatal(err)
	}

	tail := samples
	if len(tail) > 8192 {
		tail = tail[len(tail)-8192:]
	}
	fmt.Printf("wrote %s (%d samples, %.2fs)\n", *outPath, len(samples), r.Elapsed().Seconds())
	fmt.Printf("final dominant frequency %.2f Hz, rms %.4f, peak %.4f\n",
		analysis.DominantFrequency(tail, *sampleRate), analysis.RMS(samples), analysis.PeakLevel(samples))
}

func writeOutput(path, format string, samples []float32, sampleRate int) error {
	switch format {
	case "float32":
		return os.WriteFile(path, theremin.EncodeWAVFloat32LE(samples, sampleRate, 1), 0o644)
	case "pcm16":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := theremin.WriteWAV(f, samples, sampleRate); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("invalid -format %q (expected pcm16|float32)", format)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
