package input

import (
	"sync"
	"time"
)

// KeyHold latches triggers for sources that only report key presses, such as
// terminals in raw mode. A trigger stays active until no press (or auto-repeat)
// has been seen for the hold duration.
type KeyHold struct {
	mu    sync.Mutex
	state *State
	hold  time.Duration
	last  map[string]time.Time
}

func NewKeyHold(state *State, hold time.Duration) *KeyHold {
	if hold <= 0 {
		hold = 150 * time.Millisecond
	}
	return &KeyHold{state: state, hold: hold, last: make(map[string]time.Time)}
}

func (k *KeyHold) Press(id string, now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.last[id] = now
	k.state.SetTrigger(id, true)
}

// Expire releases every trigger whose last press is older than the hold
// duration. It returns the number of released triggers.
func (k *KeyHold) Expire(now time.Time) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for id, at := range k.last {
		if now.Sub(at) >= k.hold {
			delete(k.last, id)
			k.state.SetTrigger(id, false)
			n++
		}
	}
	return n
}

// ReleaseAll drops every latched trigger.
func (k *KeyHold) ReleaseAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for id := range k.last {
		k.state.SetTrigger(id, false)
	}
	k.last = make(map[string]time.Time)
}
