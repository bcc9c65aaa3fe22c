package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mattn/go-runewidth"
	"github.com/nsf/termbox-go"
	"golang.org/x/term"

	"github.com/cbegin/theremin-go"
	"github.com/cbegin/theremin-go/internal/input"
	"github.com/cbegin/theremin-go/internal/music"
	"github.com/cbegin/theremin-go/internal/synth"
)

const (
	colDef    = termbox.ColorDefault
	colWhite  = termbox.ColorWhite
	colGreen  = termbox.ColorGreen
	colYellow = termbox.ColorYellow
	colCyan   = termbox.ColorCyan
	colRed    = termbox.ColorRed
)

// mouseTrigger is held while the left mouse button is down.
const mouseTrigger = "mouse"

var logger = slog.Default()

func initLogger(debug bool, w io.Writer) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: debug}))
	slog.SetDefault(logger)
}

type app struct {
	player     *theremin.Player
	engine     *synth.Engine
	state      *input.State
	hold       *input.KeyHold
	configPath string
	status     string
	exit       bool
}

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		backend    = flag.String("backend", "oto", "audio backend: oto|ebiten|none")
		configPath = flag.String("config", "", "JSON engine config to load at start and save with Ctrl+S")
		harmonics  = flag.String("harmonics", "1", "comma-separated harmonic multipliers when no config is given")
		minFreq    = flag.Float64("min", 55, "frequency at the left edge")
		maxFreq    = flag.Float64("max", 1760, "frequency at the right edge")
		grid       = flag.Int("grid", 12, "snap grid in steps per octave (12, 24 or 1)")
		snap       = flag.Bool("snap", false, "snap new harmonics to the grid")
		glide      = flag.Bool("glide", false, "smooth pitch per sample")
		hold       = flag.Duration("hold", 150*time.Millisecond, "how long a key stays down after its last repeat")
		logPath    = flag.String("log", "", "write logs to this file")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logOut := io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		logOut = f
	}
	initLogger(*debug, logOut)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		log.Fatal("theremin needs an interactive terminal; use theremin_render for offline output")
	}

	params := synth.DefaultParams()
	params.MinFreq, params.MaxFreq = *minFreq, *maxFreq
	params.Grid = music.Grid(*grid)
	params.SampleAccurateGlide = *glide
	pl, err := theremin.NewPlayer(*sampleRate,
		theremin.WithBackend(theremin.Backend(*backend)),
		theremin.WithParams(params),
		theremin.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	a := &app{
		player:     pl,
		engine:     pl.Engine(),
		state:      pl.State(),
		hold:       input.NewKeyHold(pl.State(), *hold),
		configPath: *configPath,
		status:     "Ready",
	}
	if *configPath != "" {
		if err := pl.LoadConfig(*configPath); err != nil {
			a.status = "config: " + err.Error()
		}
	}
	if a.engine.HarmonicCount() == 0 {
		mults, err := parseMultipliers(*harmonics)
		if err != nil {
			log.Fatal(err)
		}
		for _, m := range mults {
			a.engine.AddHarmonic(m, synth.WithSnap(*snap))
		}
	}
	logger.Info("theremin starting", "sample_rate", *sampleRate, "backend", *backend, "harmonics", a.engine.HarmonicCount())

	if err := pl.Start(); err != nil {
		log.Fatal(err)
	}
	defer pl.Stop()

	if err := a.run(); err != nil {
		log.Fatal(err)
	}
}

func parseMultipliers(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, err := strconv.ParseFloat(part, 64)
		if err != nil || m <= 0 {
			return nil, fmt.Errorf("invalid -harmonics entry %q", part)
		}
		out = append(out, m)
	}
	return out, nil
}

func (a *app) run() error {
	if err := termbox.Init(); err != nil {
		return err
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc | termbox.InputMouse)
	a.resize()

	events := make(chan termbox.Event)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()
	ticker := time.NewTicker(30 * time.Millisecond)
	defer ticker.Stop()

	a.draw()
	for !a.exit {
		select {
		case ev := <-events:
			switch ev.Type {
			case termbox.EventKey:
				a.handleKey(ev)
			case termbox.EventMouse:
				a.handleMouse(ev)
			case termbox.EventResize:
				a.resize()
			case termbox.EventError:
				return ev.Err
			}
		case now := <-ticker.C:
			a.hold.Expire(now)
			a.draw()
		}
	}
	a.hold.ReleaseAll()
	return nil
}

func (a *app) resize() {
	w, h := termbox.Size()
	a.state.SetScreen(float64(w), float64(h))
}

func (a *app) handleMouse(ev termbox.Event) {
	a.state.SetPointer(float64(ev.MouseX), float64(ev.MouseY))
	switch ev.Key {
	case termbox.MouseLeft:
		a.state.SetTrigger(mouseTrigger, true)
	case termbox.MouseRelease:
		a.state.SetTrigger(mouseTrigger, false)
	}
}

func (a *app) handleKey(ev termbox.Event) {
	switch ev.Key {
	case termbox.KeyEsc, termbox.KeyCtrlC:
		a.exit = true
	case termbox.KeySpace:
		a.hold.Press(synth.DefaultTriggerKey, time.Now())
	case termbox.KeyArrowUp:
		a.addNextHarmonic()
	case termbox.KeyArrowDown:
		a.removeLastHarmonic()
	case termbox.KeyTab:
		a.cycleGrid()
	case termbox.KeyCtrlG:
		a.engine.SetSampleAccurateGlide(!a.engine.SampleAccurateGlide())
		a.status = fmt.Sprintf("sample-accurate glide: %v", a.engine.SampleAccurateGlide())
	case termbox.KeyCtrlS:
		a.saveConfig()
	case termbox.KeyCtrlL:
		a.loadConfig()
	default:
		if ev.Ch != 0 {
			a.hold.Press(string(unicode.ToLower(ev.Ch)), time.Now())
		}
	}
}

func (a *app) addNextHarmonic() {
	next := 1.0
	for _, h := range a.engine.Harmonics() {
		if h.Multiplier >= next {
			next = float64(int(h.Multiplier)) + 1
		}
	}
	a.engine.AddHarmonic(next)
	a.status = fmt.Sprintf("added harmonic %g", next)
}

func (a *app) removeLastHarmonic() {
	hs := a.engine.Harmonics()
	if len(hs) == 0 {
		return
	}
	m := hs[len(hs)-1].Multiplier
	a.engine.RemoveHarmonic(m)
	a.status = fmt.Sprintf("removed harmonic %g", m)
}

func (a *app) cycleGrid() {
	next := map[music.Grid]music.Grid{
		music.Semitones:    music.QuarterTones,
		music.QuarterTones: music.Octaves,
		music.Octaves:      music.Semitones,
	}[a.engine.Grid()]
	a.engine.SetGrid(next)
	a.status = fmt.Sprintf("grid: %d steps per octave", next)
}

func (a *app) saveConfig() {
	if a.configPath == "" {
		a.status = "no -config path set"
		return
	}
	if err := a.player.SaveConfig(a.configPath); err != nil {
		a.status = "save failed: " + err.Error()
		return
	}
	a.status = "saved " + a.configPath
}

func (a *app) loadConfig() {
	if a.configPath == "" {
		a.status = "no -config path set"
		return
	}
	if err := a.player.LoadConfig(a.configPath); err != nil {
		a.status = "load failed: " + err.Error()
		return
	}
	a.status = "loaded " + a.configPath
}

func (a *app) draw() {
	termbox.Clear(colDef, colDef)
	lo, hi := a.engine.FrequencyRange()
	x, y := a.state.Pointer()
	printTB(0, 0, colCyan, colDef, "theremin - move the mouse, hold space or a trigger key")
	printTB(0, 1, colDef, colDef, "Up/Down add/remove  Tab grid  ^G glide  ^S save  ^L load  Esc quit")
	printTB(0, 2, colDef, colDef, fmt.Sprintf("range %.1f-%.1f Hz  grid %d  pointer %.0f,%.0f  pressed %d",
		lo, hi, a.engine.Grid(), x, y, a.state.Pressed()))

	printTB(0, 4, colYellow, colDef, fmt.Sprintf("%-8s %-8s %-10s %-7s %s", "mult", "trigger", "freq", "note", "level"))
	grid := a.engine.Grid()
	row := 5
	for _, h := range a.engine.Harmonics() {
		trigger := h.TriggerKey
		if h.Group != "" {
			trigger = "[" + h.Group + "]"
		}
		note := "-"
		if n, ok := music.NoteFromFrequency(h.CurrentFreq, grid); ok && h.CurrentAmp > 1e-4 {
			note = n.String()
		}
		snap := " "
		if h.SnapEnabled {
			snap = "*"
		}
		line := fmt.Sprintf("%-8s %-8s %10.2f %s ",
			fmt.Sprintf("%g%s", h.Multiplier, snap), trigger, h.CurrentFreq, runewidth.FillRight(note, 7))
		printTB(0, row, colWhite, colDef, line)
		drawLevel(runewidth.StringWidth(line), row, h.CurrentAmp, 30)
		row++
	}
	printTB(0, row+1, colGreen, colDef, a.status)
	termbox.Flush()
}

func drawLevel(x, y int, level float64, width int) {
	filled := int(level * float64(width))
	for i := 0; i < width; i++ {
		ch := '·'
		fg := colDef
		if i < filled {
			ch = '█'
			fg = colGreen
			if i >= width*3/4 {
				fg = colRed
			}
		}
		termbox.SetCell(x+i, y, ch, fg, colDef)
	}
}

func printTB(x, y int, fg, bg termbox.Attribute, msg string) {
	for _, c := range msg {
		termbox.SetCell(x, y, c, fg, bg)
		x += runewidth.RuneWidth(c)
	}
}
