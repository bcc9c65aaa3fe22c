package input

import (
	"math"
	"sync"
	"sync/atomic"
)

// State is a tear-free input snapshot shared between an input source (mouse
// or keyboard listener) and the audio render thread. Writers may block each
// other briefly; readers never lock.
type State struct {
	x, y    uint64
	w, h    uint64
	mu      sync.Mutex
	pressed atomic.Pointer[map[string]struct{}]
}

// NewState creates a State for a screen of the given size with the pointer
// centred.
func NewState(width, height float64) *State {
	s := &State{}
	s.SetScreen(width, height)
	s.SetPointer(width/2, height/2)
	empty := map[string]struct{}{}
	s.pressed.Store(&empty)
	return s
}

func (s *State) SetPointer(x, y float64) {
	atomic.StoreUint64(&s.x, math.Float64bits(x))
	atomic.StoreUint64(&s.y, math.Float64bits(y))
}

func (s *State) Pointer() (float64, float64) {
	return math.Float64frombits(atomic.LoadUint64(&s.x)), math.Float64frombits(atomic.LoadUint64(&s.y))
}

func (s *State) SetScreen(width, height float64) {
	atomic.StoreUint64(&s.w, math.Float64bits(width))
	atomic.StoreUint64(&s.h, math.Float64bits(height))
}

func (s *State) Screen() (float64, float64) {
	return math.Float64frombits(atomic.LoadUint64(&s.w)), math.Float64frombits(atomic.LoadUint64(&s.h))
}

// SetTrigger marks id as pressed or released.
func (s *State) SetTrigger(id string, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.load()
	if _, ok := cur[id]; ok == down {
		return
	}
	next := make(map[string]struct{}, len(cur)+1)
	for k := range cur {
		next[k] = struct{}{}
	}
	if down {
		next[id] = struct{}{}
	} else {
		delete(next, id)
	}
	s.pressed.Store(&next)
}

// SetPressed replaces the whole pressed set, e.g. from a per-frame keyboard
// scan.
func (s *State) SetPressed(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	s.mu.Lock()
	s.pressed.Store(&next)
	s.mu.Unlock()
}

func (s *State) IsTriggerActive(id string) bool {
	_, ok := s.load()[id]
	return ok
}

// Pressed returns the number of currently pressed triggers.
func (s *State) Pressed() int {
	return len(s.load())
}

func (s *State) load() map[string]struct{} {
	p := s.pressed.Load()
	if p == nil {
		return nil
	}
	return *p
}
