package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cbegin/theremin-go"
	"github.com/cbegin/theremin-go/internal/analysis"
	"github.com/cbegin/theremin-go/internal/music"
	"github.com/cbegin/theremin-go/internal/synth"
)

const (
	windowW      = 1280
	windowH      = 720
	uiSampleRate = 48000

	scopeSize  = 2048
	ringBufLen = 16384
)

var (
	bgColor    = color.RGBA{14, 16, 22, 255}
	gridColor  = color.RGBA{40, 44, 58, 255}
	waveColor  = color.RGBA{80, 200, 255, 220}
	noteColor  = color.RGBA{90, 96, 120, 255}
	pointColor = color.RGBA{255, 180, 60, 255}
)

// triggerKeys maps ebiten keys to trigger ids.
var triggerKeys = func() map[ebiten.Key]string {
	m := map[ebiten.Key]string{ebiten.KeySpace: synth.DefaultTriggerKey}
	for k := ebiten.Key(0); k <= ebiten.KeyMax; k++ {
		name := k.String()
		switch {
		case len(name) == 1 && name[0] >= 'A' && name[0] <= 'Z':
			m[k] = strings.ToLower(name)
		case strings.HasPrefix(name, "Digit"):
			m[k] = strings.TrimPrefix(name, "Digit")
		}
	}
	return m
}()

var errQuit = errors.New("quit")

type scope struct {
	mu       sync.Mutex
	ring     []float32
	writePos int
}

// Tap is called from the audio thread.
func (s *scope) Tap(samples []float32) {
	s.mu.Lock()
	for _, v := range samples {
		s.ring[s.writePos] = v
		s.writePos = (s.writePos + 1) % len(s.ring)
	}
	s.mu.Unlock()
}

func (s *scope) Snapshot(n int) []float32 {
	out := make([]float32, n)
	s.mu.Lock()
	start := (s.writePos - n + len(s.ring)) % len(s.ring)
	for i := range out {
		out[i] = s.ring[(start+i)%len(s.ring)]
	}
	s.mu.Unlock()
	return out
}

type game struct {
	player     *theremin.Player
	engine     *synth.Engine
	scope      *scope
	configPath string
	status     string
	viewW      int
	viewH      int
	pressed    []string
}

func newGame(backend theremin.Backend, configPath string) (*game, error) {
	sc := &scope{ring: make([]float32, ringBufLen)}
	pl, err := theremin.NewPlayer(uiSampleRate,
		theremin.WithBackend(backend),
		theremin.WithSampleTap(sc.Tap),
		theremin.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	g := &game{
		player:     pl,
		engine:     pl.Engine(),
		scope:      sc,
		configPath: configPath,
		status:     "Ready",
		viewW:      windowW,
		viewH:      windowH,
	}
	if configPath != "" {
		if err := pl.LoadConfig(configPath); err != nil {
			g.status = err.Error()
		}
	}
	if g.engine.HarmonicCount() == 0 {
		g.engine.AddHarmonic(1)
		g.engine.AddHarmonic(2, synth.WithAmplitude(0.5))
		g.engine.AddHarmonic(3, synth.WithAmplitude(0.25))
	}
	if err := pl.Start(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *game) Update() error {
	st := g.player.State()
	mx, my := ebiten.CursorPosition()
	st.SetScreen(float64(g.viewW), float64(g.viewH))
	st.SetPointer(float64(mx), float64(my))

	g.pressed = g.pressed[:0]
	for k, id := range triggerKeys {
		if ebiten.IsKeyPressed(k) {
			g.pressed = append(g.pressed, id)
		}
	}
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.pressed = append(g.pressed, "mouse")
	}
	st.SetPressed(g.pressed)

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		return errQuit
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowUp):
		next := math.Floor(g.maxMultiplier()) + 1
		g.engine.AddHarmonic(next)
		g.setStatus(fmt.Sprintf("added harmonic %g", next))
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowDown):
		hs := g.engine.Harmonics()
		if len(hs) > 0 {
			g.engine.RemoveHarmonic(hs[len(hs)-1].Multiplier)
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyF1):
		g.toggleSnap()
	case inpututil.IsKeyJustPressed(ebiten.KeyF2):
		g.cycleGrid()
	case inpututil.IsKeyJustPressed(ebiten.KeyF3):
		g.engine.SetSampleAccurateGlide(!g.engine.SampleAccurateGlide())
		g.setStatus(fmt.Sprintf("sample-accurate glide: %v", g.engine.SampleAccurateGlide()))
	case inpututil.IsKeyJustPressed(ebiten.KeyF5):
		g.save()
	case inpututil.IsKeyJustPressed(ebiten.KeyF9):
		g.load()
	}
	return nil
}

func (g *game) maxMultiplier() float64 {
	m := 0.0
	for _, h := range g.engine.Harmonics() {
		m = math.Max(m, h.Multiplier)
	}
	return m
}

func (g *game) toggleSnap() {
	hs := g.engine.Harmonics()
	on := len(hs) > 0 && !hs[0].SnapEnabled
	for _, h := range hs {
		_ = g.engine.SetHarmonicSnap(h.Multiplier, on)
	}
	g.setStatus(fmt.Sprintf("snap: %v", on))
}

func (g *game) cycleGrid() {
	switch g.engine.Grid() {
	case music.Semitones:
		g.engine.SetGrid(music.QuarterTones)
	case music.QuarterTones:
		g.engine.SetGrid(music.Octaves)
	default:
		g.engine.SetGrid(music.Semitones)
	}
	g.setStatus(fmt.Sprintf("grid: %d steps per octave", g.engine.Grid()))
}

func (g *game) save() {
	if g.configPath == "" {
		g.setStatus("no -config path set")
		return
	}
	if err := g.player.SaveConfig(g.configPath); err != nil {
		g.setStatus(err.Error())
		return
	}
	g.setStatus("saved " + g.configPath)
}

func (g *game) load() {
	if g.configPath == "" {
		g.setStatus("no -config path set")
		return
	}
	if err := g.player.LoadConfig(g.configPath); err != nil {
		g.setStatus(err.Error())
		return
	}
	g.setStatus("loaded " + g.configPath)
}

func (g *game) setStatus(msg string) { g.status = msg }

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	g.drawNoteGrid(screen)
	g.drawWaveform(screen)

	mx, my := ebiten.CursorPosition()
	ebitenutil.DrawRect(screen, float64(mx)-2, float64(my)-2, 5, 5, pointColor)

	lo, hi := g.engine.FrequencyRange()
	grid := g.engine.Grid()
	lines := []string{
		fmt.Sprintf("range %.1f-%.1f Hz  grid %d  glide %v", lo, hi, grid, g.engine.SampleAccurateGlide()),
		"Up/Down harmonics  F1 snap  F2 grid  F3 glide  F5 save  F9 load  Esc quit",
		"",
	}
	for _, h := range g.engine.Harmonics() {
		note := "-"
		if n, ok := music.NoteFromFrequency(h.CurrentFreq, grid); ok && h.CurrentAmp > 1e-4 {
			note = n.String()
		}
		trigger := h.TriggerKey
		if h.Group != "" {
			trigger = "[" + h.Group + "]"
		}
		lines = append(lines, fmt.Sprintf("x%-5g %-8s %8.2f Hz %-6s amp %.2f", h.Multiplier, trigger, h.CurrentFreq, note, h.CurrentAmp))
	}
	snap := g.scope.Snapshot(scopeSize)
	lines = append(lines, "",
		fmt.Sprintf("peak %.1f Hz  rms %.3f", analysis.DominantFrequency(snap, uiSampleRate), analysis.RMS(snap)),
		g.status)
	ebitenutil.DebugPrintAt(screen, strings.Join(lines, "\n"), 8, 8)
}

// drawNoteGrid marks every C across the pointer's frequency span.
func (g *game) drawNoteGrid(screen *ebiten.Image) {
	lo, hi := g.engine.FrequencyRange()
	for f := music.SnapToOctave(lo); f <= hi; f *= 2 {
		if f < lo {
			continue
		}
		x := music.InvLogScale(f, lo, hi) * float64(g.viewW)
		ebitenutil.DrawRect(screen, x, 0, 1, float64(g.viewH), noteColor)
		ebitenutil.DebugPrintAt(screen, noteName(f), int(x)+3, g.viewH-16)
	}
}

func noteName(f float64) string {
	n, ok := music.NoteFromFrequency(f, music.Semitones)
	if !ok {
		return ""
	}
	return n.String()
}

func (g *game) drawWaveform(screen *ebiten.Image) {
	samples := g.scope.Snapshot(scopeSize)
	midY := float64(g.viewH) * 0.75
	height := float64(g.viewH) * 0.2
	ebitenutil.DrawRect(screen, 0, midY, float64(g.viewW), 1, gridColor)
	start := findZeroCrossing(samples, len(samples)/2)
	visible := len(samples) - start
	prevX, prevY := 0.0, midY-float64(samples[start])*height
	for px := 1; px < g.viewW; px++ {
		si := start + px*visible/g.viewW
		if si >= len(samples) {
			si = len(samples) - 1
		}
		y := midY - float64(samples[si])*height
		ebitenutil.DrawLine(screen, prevX, prevY, float64(px), y, waveColor)
		prevX, prevY = float64(px), y
	}
}

// findZeroCrossing finds a rising zero-crossing to stabilize the waveform display.
func findZeroCrossing(samples []float32, searchLen int) int {
	if searchLen > len(samples)-2 {
		searchLen = len(samples) - 2
	}
	for i := 1; i < searchLen; i++ {
		if samples[i-1] <= 0 && samples[i] > 0 {
			return i
		}
	}
	return 0
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	g.viewW = outsideW
	g.viewH = outsideH
	return outsideW, outsideH
}

func (g *game) Close() { _ = g.player.Stop() }

func main() {
	var (
		backend    = flag.String("backend", "ebiten", "audio backend: ebiten|oto|none")
		configPath = flag.String("config", "", "JSON engine config to load at start; F5 saves, F9 reloads")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	g, err := newGame(theremin.Backend(*backend), *configPath)
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowTitle("theremin-go")
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, errQuit) {
		log.Fatal(err)
	}
}
