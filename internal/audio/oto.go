//go:build !headless

package audio

import (
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoPlayer plays a mono float32 stream through oto without a game loop.
type OtoPlayer struct {
	mu      sync.Mutex
	player  *oto.Player
	reader  *StreamReader
	playing bool
}

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func NewOtoPlayer(sampleRate int, source SampleSource) (*OtoPlayer, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
		})
		if otoErr == nil {
			<-ready
			otoRate = sampleRate
		}
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, errRateMismatch(otoRate, sampleRate)
	}
	reader := NewStreamReader(source, 1)
	return &OtoPlayer{player: otoCtx.NewPlayer(reader), reader: reader}, nil
}

func (p *OtoPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player != nil && !p.playing {
		p.player.Play()
		p.playing = true
	}
}

func (p *OtoPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player != nil && p.playing {
		p.player.Pause()
		p.playing = false
	}
}

func (p *OtoPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil {
		return nil
	}
	p.playing = false
	err := p.player.Close()
	p.player = nil
	return err
}
