package synth

import (
	"errors"
	"math"
	"sync"
	"testing"
)

type fakeInput struct {
	x, y, w, h float64
	keys       map[string]bool
	queries    map[string]int
}

func newFakeInput() *fakeInput {
	return &fakeInput{x: 960, y: 1080, w: 1920, h: 1080, keys: map[string]bool{}, queries: map[string]int{}}
}

func (f *fakeInput) Pointer() (float64, float64) { return f.x, f.y }
func (f *fakeInput) Screen() (float64, float64)  { return f.w, f.h }
func (f *fakeInput) IsTriggerActive(id string) bool {
	f.queries[id]++
	return f.keys[id]
}

func TestAddHarmonicRejectsDuplicatesAndInvalid(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	if !e.AddHarmonic(2.0) {
		t.Fatal("first add should succeed")
	}
	if e.AddHarmonic(2.0) {
		t.Fatal("duplicate add should be ignored")
	}
	for _, m := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if e.AddHarmonic(m) {
			t.Fatalf("AddHarmonic(%v) should be ignored", m)
		}
	}
	if got := e.HarmonicCount(); got != 1 {
		t.Fatalf("harmonic count = %d, want 1", got)
	}
	h, _ := e.Harmonic(2.0)
	if h.Amplitude != 1 || h.AmpSmoothingMs != 100 || h.PitchSmoothingMs != 50 || h.TriggerKey != "space" {
		t.Fatalf("unexpected defaults: %+v", h)
	}
}

func TestRemoveHarmonicAbsentIsNoop(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	e.AddHarmonic(1)
	e.AddHarmonic(2)
	e.RemoveHarmonic(3)
	if got := e.HarmonicCount(); got != 2 {
		t.Fatalf("harmonic count = %d, want 2", got)
	}
	e.RemoveHarmonic(1)
	if _, ok := e.Harmonic(1); ok {
		t.Fatal("harmonic 1 should be gone")
	}
}

func TestRemoveHarmonicDetachesFromGroup(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	e.AddHarmonic(1)
	e.AddHarmonic(2)
	if err := e.CreateGroup("G", "g", 1, 2); err != nil {
		t.Fatal(err)
	}
	e.RemoveHarmonic(1)
	g, _ := e.Group("G")
	if len(g.Members) != 1 || g.Members[0] != 2 {
		t.Fatalf("members = %v, want [2]", g.Members)
	}
}

func TestAssignToGroupKeepsSingleMembership(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	e.AddHarmonic(1.5)
	_ = e.CreateGroup("G1", "a")
	_ = e.CreateGroup("G2", "b")
	if err := e.AssignToGroup(1.5, "G1"); err != nil {
		t.Fatal(err)
	}
	if err := e.AssignToGroup(1.5, "G2"); err != nil {
		t.Fatal(err)
	}
	if name, ok := e.GroupForHarmonic(1.5); !ok || name != "G2" {
		t.Fatalf("group = %q, want G2", name)
	}
	g1, _ := e.Group("G1")
	if len(g1.Members) != 0 {
		t.Fatalf("G1 members = %v, want none", g1.Members)
	}
	if err := e.AssignToGroup(9, "G1"); !errors.Is(err, ErrHarmonicNotFound) {
		t.Fatalf("err = %v, want ErrHarmonicNotFound", err)
	}
	if err := e.AssignToGroup(1.5, "nope"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestCreateGroup(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	e.AddHarmonic(1)
	e.AddHarmonic(2)
	_ = e.CreateGroup("A", "a", 1)
	if err := e.CreateGroup("B", "b", 1, 2, 7); err != nil {
		t.Fatal(err)
	}
	b, _ := e.Group("B")
	if len(b.Members) != 2 {
		t.Fatalf("B members = %v, want [1 2]", b.Members)
	}
	a, _ := e.Group("A")
	if len(a.Members) != 0 {
		t.Fatalf("A should have lost harmonic 1, got %v", a.Members)
	}
	if err := e.CreateGroup("B", "x"); !errors.Is(err, ErrGroupExists) {
		t.Fatalf("err = %v, want ErrGroupExists", err)
	}
	if err := e.CreateGroup("", "x"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
}

func TestRemoveGroupAndRemoveFromGroup(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	e.AddHarmonic(1)
	e.AddHarmonic(2)
	_ = e.CreateGroup("G", "g", 1, 2)
	if err := e.RemoveFromGroup(1); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.GroupForHarmonic(1); ok {
		t.Fatal("harmonic 1 should be ungrouped")
	}
	if err := e.RemoveFromGroup(1); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
	if err := e.RemoveGroup("G"); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.GroupForHarmonic(2); ok {
		t.Fatal("harmonic 2 should be ungrouped after group removal")
	}
	if err := e.RemoveGroup("G"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
	if len(e.Groups()) != 0 {
		t.Fatal("no groups should remain")
	}
}

func TestSetGroupKey(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	_ = e.CreateGroup("G", "a")
	if err := e.SetGroupKey("G", "b"); err != nil {
		t.Fatal(err)
	}
	g, _ := e.Group("G")
	if g.TriggerKey != "b" {
		t.Fatalf("key = %q, want b", g.TriggerKey)
	}
	if err := e.SetGroupKey("X", "b"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestUpdateHarmonicMultiplier(t *testing.T) {
	in := newFakeInput()
	in.keys["g"] = true
	e := New(48000, DefaultParams(), in)
	e.AddHarmonic(1, WithAmplitude(0.4), WithSnap(true))
	e.AddHarmonic(2)
	_ = e.CreateGroup("G", "g", 1)
	e.Render(256)

	before := e.snap.Load().voices[0].v
	phase := before.phase

	if err := e.UpdateHarmonicMultiplier(1, 2); !errors.Is(err, ErrHarmonicExists) {
		t.Fatalf("err = %v, want ErrHarmonicExists", err)
	}
	if err := e.UpdateHarmonicMultiplier(5, 6); !errors.Is(err, ErrHarmonicNotFound) {
		t.Fatalf("err = %v, want ErrHarmonicNotFound", err)
	}
	if err := e.UpdateHarmonicMultiplier(1, -3); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	if err := e.UpdateHarmonicMultiplier(1, 3); err != nil {
		t.Fatal(err)
	}
	h, ok := e.Harmonic(3)
	if !ok {
		t.Fatal("harmonic 3 missing")
	}
	if h.Amplitude != 0.4 || !h.SnapEnabled || h.Group != "G" {
		t.Fatalf("fields not preserved: %+v", h)
	}
	if _, ok := e.Harmonic(1); ok {
		t.Fatal("old multiplier still present")
	}
	after := e.snap.Load().voices[0].v
	if after != before || after.phase != phase {
		t.Fatal("synthesis state should be preserved")
	}
	g, _ := e.Group("G")
	if len(g.Members) != 1 || g.Members[0] != 3 {
		t.Fatalf("group members = %v, want [3]", g.Members)
	}
}

func TestHarmonicSettersClampAndValidate(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	e.AddHarmonic(1)
	_ = e.SetHarmonicAmp(1, 3)
	_ = e.SetHarmonicAmpSmoothing(1, -5)
	_ = e.SetHarmonicPitchSmoothing(1, 12)
	_ = e.SetHarmonicSnap(1, true)
	_ = e.SetHarmonicKey(1, "q")
	h, _ := e.Harmonic(1)
	if h.Amplitude != 1 || h.AmpSmoothingMs != 0 || h.PitchSmoothingMs != 12 || !h.SnapEnabled || h.TriggerKey != "q" {
		t.Fatalf("unexpected harmonic: %+v", h)
	}
	_ = e.SetHarmonicAmp(1, -1)
	if h, _ := e.Harmonic(1); h.Amplitude != 0 {
		t.Fatalf("amp = %v, want 0", h.Amplitude)
	}
	if err := e.SetHarmonicAmp(1, math.NaN()); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	if h, _ := e.Harmonic(1); h.Amplitude != 0 {
		t.Fatal("NaN must not change amplitude")
	}
	if err := e.SetHarmonicAmp(8, 0.5); !errors.Is(err, ErrHarmonicNotFound) {
		t.Fatalf("err = %v, want ErrHarmonicNotFound", err)
	}
	if err := e.SetHarmonicKey(8, "x"); !errors.Is(err, ErrHarmonicNotFound) {
		t.Fatalf("err = %v, want ErrHarmonicNotFound", err)
	}
}

func TestCopyGroupCreatesUniqueHarmonics(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	e.AddHarmonic(1, WithAmplitude(0.3), WithTriggerKey("z"))
	e.AddHarmonic(1.1)
	e.AddHarmonic(2)
	_ = e.CreateGroup("G", "g", 1, 2)
	if err := e.CopyGroup("G", "H"); err != nil {
		t.Fatal(err)
	}
	h, ok := e.Group("H")
	if !ok || h.TriggerKey != "g" || len(h.Members) != 2 {
		t.Fatalf("copied group = %+v", h)
	}
	if math.Abs(h.Members[0]-1.2) > 1e-9 || math.Abs(h.Members[1]-2.1) > 1e-9 {
		t.Fatalf("copied multipliers = %v, want [1.2 2.1]", h.Members)
	}
	c, _ := e.Harmonic(h.Members[0])
	if c.Amplitude != 0.3 || c.TriggerKey != "z" {
		t.Fatalf("copied harmonic fields = %+v", c)
	}
	if g, _ := e.Group("G"); len(g.Members) != 2 {
		t.Fatal("source group must be unchanged")
	}
	if err := e.CopyGroup("G", "H"); !errors.Is(err, ErrGroupExists) {
		t.Fatalf("err = %v, want ErrGroupExists", err)
	}
	if err := e.CopyGroup("X", "Y"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestFrequencyRangeValidation(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	if err := e.SetFrequencyRange(100, 50); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
	if err := e.SetMinFreq(0); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
	if err := e.SetMaxFreq(10); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
	if lo, hi := e.FrequencyRange(); lo != 55 || hi != 1760 {
		t.Fatalf("range = [%v, %v], want defaults", lo, hi)
	}
	if err := e.SetMaxFreq(3000); err != nil {
		t.Fatal(err)
	}
	if err := e.SetMinFreq(20); err != nil {
		t.Fatal(err)
	}
	if lo, hi := e.FrequencyRange(); lo != 20 || hi != 3000 {
		t.Fatalf("range = [%v, %v], want [20, 3000]", lo, hi)
	}
}

func TestGlobalSettersClamp(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	_ = e.SetGlobalAmpSmoothing(-1)
	_ = e.SetGlobalPitchSmoothing(30)
	_ = e.SetTriggerPollInterval(-4)
	if e.GlobalAmpSmoothing() != 0 || e.GlobalPitchSmoothing() != 30 || e.TriggerPollInterval() != 0 {
		t.Fatal("global setters did not clamp")
	}
	if err := e.SetGlobalAmpSmoothing(math.NaN()); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	e.SetGrid(0)
	if e.Grid() != 12 {
		t.Fatalf("grid = %d, want fallback 12", e.Grid())
	}
}

func TestNewReplacesNaNParams(t *testing.T) {
	p := DefaultParams()
	p.GlobalAmpSmoothingMs = math.NaN()
	p.GlobalPitchSmoothingMs = math.NaN()
	p.TriggerPollIntervalMs = math.NaN()
	p.MaxBlockFrames = -1
	e := New(48000, p, nil)
	def := DefaultParams()
	if e.GlobalAmpSmoothing() != def.GlobalAmpSmoothingMs ||
		e.GlobalPitchSmoothing() != def.GlobalPitchSmoothingMs ||
		e.TriggerPollInterval() != def.TriggerPollIntervalMs {
		t.Fatalf("globals = %v, %v, %v", e.GlobalAmpSmoothing(), e.GlobalPitchSmoothing(), e.TriggerPollInterval())
	}

	in := newFakeInput()
	in.keys["space"] = true
	e = New(48000, p, in)
	e.AddHarmonic(1, WithAmpSmoothing(0), WithPitchSmoothing(0))
	for i, s := range e.Render(256) {
		if math.IsNaN(float64(s)) {
			t.Fatalf("sample %d is NaN", i)
		}
	}
}

func TestClear(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	e.AddHarmonic(1)
	_ = e.CreateGroup("G", "g", 1)
	e.Clear()
	if e.HarmonicCount() != 0 || len(e.Groups()) != 0 {
		t.Fatal("clear should drop everything")
	}
	if !e.AddHarmonic(1) {
		t.Fatal("multiplier should be reusable after clear")
	}
}

func TestConcurrentControlAndRender(t *testing.T) {
	e := New(48000, DefaultParams(), nil)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]float32, 128)
		for {
			select {
			case <-stop:
				return
			default:
				e.Process(buf)
			}
		}
	}()
	for i := 0; i < 200; i++ {
		m := float64(i%7 + 1)
		e.AddHarmonic(m)
		_ = e.SetHarmonicAmp(m, 0.5)
		_ = e.CreateGroup("G", "g", m)
		_ = e.UpdateHarmonicMultiplier(m, m+10)
		e.RemoveHarmonic(m + 10)
		_ = e.RemoveGroup("G")
	}
	close(stop)
	wg.Wait()
}
