//go:build headless

package audio

import "sync/atomic"

// OtoPlayer is a silent stand-in for builds without an audio device.
type OtoPlayer struct {
	playing atomic.Bool
}

func NewOtoPlayer(sampleRate int, source SampleSource) (*OtoPlayer, error) {
	return &OtoPlayer{}, nil
}

func (p *OtoPlayer) Play()           { p.playing.Store(true) }
func (p *OtoPlayer) Pause()          { p.playing.Store(false) }
func (p *OtoPlayer) IsPlaying() bool { return p.playing.Load() }
func (p *OtoPlayer) Close() error    { p.playing.Store(false); return nil }
