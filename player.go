package theremin

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	intaudio "github.com/cbegin/theremin-go/internal/audio"
	intcfg "github.com/cbegin/theremin-go/internal/config"
	intinput "github.com/cbegin/theremin-go/internal/input"
	intseq "github.com/cbegin/theremin-go/internal/sequence"
	"github.com/cbegin/theremin-go/internal/synth"
)

// Backend selects the audio output driver.
type Backend string

const (
	BackendEbiten Backend = "ebiten"
	BackendOto    Backend = "oto"
	// BackendNone renders nothing; the engine is driven by the caller.
	BackendNone Backend = "none"
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	backend   Backend
	params    synth.Params
	input     synth.Input
	sampleTap func([]float32)
	logger    *slog.Logger
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{backend: BackendEbiten, params: synth.DefaultParams()}
}

func WithBackend(b Backend) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = b
	}
}

func WithParams(p synth.Params) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params = p
	}
}

// WithInput replaces the default pointer and key state with a custom source.
func WithInput(in synth.Input) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.input = in
	}
}

// WithSampleTap installs a callback invoked with each generated mono buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

func WithLogger(l *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.logger = l
	}
}

// Player owns a synth engine, its input state and an audio backend.
type Player struct {
	mu         sync.Mutex
	sampleRate int
	backend    Backend
	engine     *synth.Engine
	input      synth.Input
	state      *intinput.State
	audio      intaudio.Backend
	source     *tapSource
	log        *slog.Logger
}

// tapSource applies master volume and forwards buffers to the sample tap.
type tapSource struct {
	engine    *synth.Engine
	volume    uint64
	sampleTap func([]float32)
}

func (s *tapSource) Process(dst []float32) {
	s.engine.Process(dst)
	if v := math.Float64frombits(atomic.LoadUint64(&s.volume)); v != 1 {
		g := float32(v)
		for i := range dst {
			dst[i] *= g
		}
	}
	if s.sampleTap != nil {
		s.sampleTap(dst)
	}
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.backend {
	case BackendEbiten, BackendOto, BackendNone:
	default:
		return nil, errors.New("unknown audio backend")
	}
	log := cfg.logger
	if log == nil {
		log = slog.Default()
	}
	p := &Player{sampleRate: sampleRate, backend: cfg.backend, log: log}
	in := cfg.input
	if in == nil {
		p.state = intinput.NewState(1920, 1080)
		in = p.state
	}
	p.input = in
	p.engine = synth.New(sampleRate, cfg.params, in)
	p.source = &tapSource{engine: p.engine, sampleTap: cfg.sampleTap}
	atomic.StoreUint64(&p.source.volume, math.Float64bits(1))
	return p, nil
}

func (p *Player) SampleRate() int { return p.sampleRate }

func (p *Player) Engine() *synth.Engine { return p.engine }

func (p *Player) Input() synth.Input { return p.input }

// State returns the built-in input state, or nil when WithInput was used.
func (p *Player) State() *intinput.State { return p.state }

// Start opens the audio backend on first use and begins playback.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		a, err := p.openBackend()
		if err != nil {
			p.log.Error("open audio backend", "backend", p.backend, "err", err)
			return err
		}
		p.audio = a
		p.log.Info("audio started", "backend", p.backend, "sample_rate", p.sampleRate)
	}
	p.audio.Play()
	return nil
}

func (p *Player) openBackend() (intaudio.Backend, error) {
	switch p.backend {
	case BackendOto:
		return intaudio.NewOtoPlayer(p.sampleRate, p.source)
	case BackendNone:
		return &nullBackend{}, nil
	default:
		return intaudio.NewPlayer(p.sampleRate, p.source)
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio != nil && p.audio.IsPlaying()
}

func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return nil
	}
	err := p.audio.Close()
	p.audio = nil
	p.log.Info("audio stopped", "backend", p.backend)
	return err
}

// Process renders into dst exactly as the audio backend would. It is meant
// for BackendNone, where the caller owns the audio thread.
func (p *Player) Process(dst []float32) {
	p.source.Process(dst)
}

// SetMasterVolume sets a runtime output scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 || math.IsNaN(volume) {
		volume = 0
	}
	atomic.StoreUint64(&p.source.volume, math.Float64bits(volume))
}

func (p *Player) MasterVolume() float64 {
	return math.Float64frombits(atomic.LoadUint64(&p.source.volume))
}

// LoadConfig replaces the engine state with the file at path.
func (p *Player) LoadConfig(path string) error {
	if err := intcfg.LoadInto(p.engine, path); err != nil {
		p.log.Warn("load config", "path", path, "err", err)
		return err
	}
	p.log.Info("config loaded", "path", path, "harmonics", p.engine.HarmonicCount())
	return nil
}

func (p *Player) SaveConfig(path string) error {
	if err := intcfg.SaveFrom(p.engine, path); err != nil {
		p.log.Warn("save config", "path", path, "err", err)
		return err
	}
	p.log.Info("config saved", "path", path)
	return nil
}

// GenerateSequence adds harmonics produced by repeatedly applying expr to the
// parent multiplier. See sequence.Generate.
func (p *Player) GenerateSequence(ctx context.Context, parent float64, expr string, iterations int) ([]float64, error) {
	added, err := intseq.Generate(ctx, p.engine, parent, expr, iterations)
	if err != nil {
		p.log.Debug("sequence stopped", "parent", parent, "expr", expr, "added", len(added), "err", err)
	}
	return added, err
}

type nullBackend struct{ playing atomic.Bool }

func (b *nullBackend) Play()           { b.playing.Store(true) }
func (b *nullBackend) Pause()          { b.playing.Store(false) }
func (b *nullBackend) IsPlaying() bool { return b.playing.Load() }
func (b *nullBackend) Close() error    { b.playing.Store(false); return nil }
