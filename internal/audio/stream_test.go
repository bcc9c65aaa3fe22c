package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

type rampSource struct{ next float32 }

func (r *rampSource) Process(dst []float32) {
	for i := range dst {
		r.next += 0.25
		dst[i] = r.next
	}
}

func TestStreamReaderDuplicatesMonoIntoStereo(t *testing.T) {
	r := NewStreamReader(&rampSource{}, 2)
	p := make([]byte, 8*3+5)
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 24 {
		t.Fatalf("read %d bytes, want 24", n)
	}
	for frame := 0; frame < 3; frame++ {
		want := float32(frame+1) * 0.25
		for ch := 0; ch < 2; ch++ {
			got := math.Float32frombits(binary.LittleEndian.Uint32(p[(frame*2+ch)*4:]))
			if got != want {
				t.Fatalf("frame %d channel %d = %v, want %v", frame, ch, got, want)
			}
		}
	}
}

func TestStreamReaderMono(t *testing.T) {
	src := &rampSource{}
	r := NewStreamReader(src, 0)
	p := make([]byte, 16)
	if n, _ := r.Read(p); n != 16 {
		t.Fatalf("read %d bytes, want 16", n)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(p[12:])); got != 1 {
		t.Fatalf("last sample = %v, want 1", got)
	}
	// Continues where the previous read stopped.
	if n, _ := r.Read(p[:4]); n != 4 {
		t.Fatalf("read %d bytes, want 4", n)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(p)); got != 1.25 {
		t.Fatalf("next sample = %v, want 1.25", got)
	}
}

func TestStreamReaderShortBuffer(t *testing.T) {
	r := NewStreamReader(&rampSource{}, 2)
	if n, err := r.Read(make([]byte, 7)); n != 0 || err != nil {
		t.Fatalf("Read = %d, %v", n, err)
	}
}
