package audio

import (
	"testing"
	"time"

	"github.com/satindergrewal/lyricast/internal/timeline"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

func TestSampleIndex(t *testing.T) {
	tests := []struct {
		t    float64
		want int64
	}{
		{0, 0},
		{1, 48000},
		{0.5, 24000},
		{1.0 / 30, 1600},
		{0.00001, 1},
	}
	for _, tt := range tests {
		if got := SampleIndex(tt.t); got != tt.want {
			t.Errorf("SampleIndex(%v) = %d, want %d", tt.t, got, tt.want)
		}
	}
}

// --- Mixing ---

func TestMixIntoAdds(t *testing.T) {
	dst := []int16{1000, -1000, 500, -500}
	MixInto(dst, []int16{1000, 1000, 1000, 1000}, 0.5)
	want := []int16{1500, -500, 1000, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestMixIntoClipping(t *testing.T) {
	dst := []int16{32000, -32000}
	MixInto(dst, []int16{32000, -32000}, 1)
	if dst[0] != 32767 {
		t.Errorf("Max clip: got %d, want 32767", dst[0])
	}
	if dst[1] != -32768 {
		t.Errorf("Min clip: got %d, want -32768", dst[1])
	}
}

func TestMixIntoShorterSource(t *testing.T) {
	dst := []int16{1, 2, 3, 4}
	MixInto(dst, []int16{10, 10}, 1)
	if dst[0] != 11 || dst[1] != 12 || dst[2] != 3 || dst[3] != 4 {
		t.Errorf("dst = %v", dst)
	}
}

// --- SamplesToBytes / round-trip ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}
	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	original := []int16{0, 1, -1, 32767, -32768, 12345, -6789}
	recovered := BytesToSamples(append(SamplesToBytes(original), 0x7f))
	if len(recovered) != len(original) {
		t.Fatalf("len = %d, want %d (odd byte dropped)", len(recovered), len(original))
	}
	for i, v := range original {
		if recovered[i] != v {
			t.Errorf("Round-trip sample[%d]: got %d, want %d", i, recovered[i], v)
		}
	}
}

// --- Bus ---

// constClip returns a clip of n sample frames all set to v.
func constClip(n int, v int16) *Clip {
	s := make([]int16, n*Channels)
	for i := range s {
		s[i] = v
	}
	return &Clip{Samples: s}
}

func boolPtr(b bool) *bool { return &b }

func TestBusPrimaryOnly(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()
	b.Load(TrackInfo{Title: "t"}, constClip(SampleRate, 100))

	out := b.Mix(0, 10)
	if len(out) != 10*Channels {
		t.Fatalf("len = %d", len(out))
	}
	for i, v := range out {
		if v != 100 {
			t.Fatalf("sample[%d] = %d, want 100", i, v)
		}
	}
	// Past the end of the primary is silence.
	tail := b.Mix(SampleRate-1, SampleRate+1)
	if tail[0] != 100 || tail[2] != 0 {
		t.Errorf("tail = %v, want [100 100 0 0]", tail)
	}
}

func TestBusGatesSlideByWindow(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()
	b.Load(TrackInfo{}, constClip(SampleRate*3, 0))
	slide := timeline.Slide{ID: "v", Kind: timeline.KindVideo, Window: timeline.Window{Start: 1, End: 2}, Volume: 1}
	b.Attach(slide, constClip(SampleRate*5, 50))

	out := b.Mix(0, SampleRate*3)
	frame := func(n int64) int16 { return out[n*Channels] }

	if frame(SampleRate-1) != 0 {
		t.Error("slide audible before its window")
	}
	if frame(SampleRate) != 50 {
		t.Error("slide silent at window start")
	}
	if frame(2*SampleRate-1) != 50 {
		t.Error("slide silent just before window end")
	}
	if frame(2*SampleRate) != 0 {
		t.Error("slide audible at window end")
	}
}

func TestBusMutedAndAudioDefault(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()
	b.Load(TrackInfo{}, constClip(100, 0))
	w := timeline.Window{Start: 0, End: 1}
	b.Attach(timeline.Slide{ID: "muted-video", Kind: timeline.KindVideo, Window: w, Volume: 1, Muted: boolPtr(true)}, constClip(100, 10))
	b.Attach(timeline.Slide{ID: "default-audio", Kind: timeline.KindAudio, Window: w, Volume: 1}, constClip(100, 20))
	b.Attach(timeline.Slide{ID: "unmuted-audio", Kind: timeline.KindAudio, Window: w, Volume: 0.5, Muted: boolPtr(false)}, constClip(100, 40))

	out := b.Mix(0, 10)
	if out[0] != 20 {
		t.Errorf("mixed = %d, want only the unmuted audio at half volume (20)", out[0])
	}
}

func TestBusOverlappingSlidesAllMixed(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()
	b.Load(TrackInfo{}, constClip(100, 1))
	w := timeline.Window{Start: 0, End: 1}
	b.Attach(timeline.Slide{ID: "a", Kind: timeline.KindVideo, Window: w, Volume: 1}, constClip(100, 10))
	b.Attach(timeline.Slide{ID: "b", Kind: timeline.KindVideo, Window: w, Volume: 1}, constClip(100, 100))
	if out := b.Mix(0, 1); out[0] != 111 {
		t.Errorf("mixed = %d, want 111", out[0])
	}
}

func TestBusIgnoresImageSlides(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()
	b.Attach(timeline.Slide{Kind: timeline.KindImage, Window: timeline.Window{End: 1}}, constClip(10, 1))
	if b.Channels() != 0 {
		t.Error("image slide should not get a bus channel")
	}
}

func TestBusLoadResetsChannelsAndStatus(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()
	b.Load(TrackInfo{Index: 0}, constClip(SampleRate, 0))
	b.Attach(timeline.Slide{Kind: timeline.KindVideo, Window: timeline.Window{End: 1}}, constClip(10, 1))
	b.Mix(0, SampleRate/2)

	track, pos, dur := b.Status()
	if pos != 500*time.Millisecond || dur != time.Second || track.Index != 0 {
		t.Errorf("status = %v %v %v", track, pos, dur)
	}

	b.Load(TrackInfo{Index: 1}, constClip(2*SampleRate, 0))
	track, pos, dur = b.Status()
	if b.Channels() != 0 || pos != 0 || dur != 2*time.Second || track.Index != 1 {
		t.Errorf("after Load: channels=%d status=%v %v %v", b.Channels(), track, pos, dur)
	}
}

func TestBusMonitorTapRechunks(t *testing.T) {
	b := NewBus(nil)
	b.Load(TrackInfo{}, constClip(SampleRate, 7))

	// 1600 frames per 1/30s tick; three ticks = 4800 = five 20ms frames.
	for i := int64(0); i < 3; i++ {
		b.Mix(i*1600, (i+1)*1600)
	}
	for i := 0; i < 5; i++ {
		select {
		case f := <-b.Frames():
			if len(f) != FrameSamples || f[0] != 7 {
				t.Fatalf("frame %d: len=%d first=%d", i, len(f), f[0])
			}
		default:
			t.Fatalf("expected frame %d on the tap", i)
		}
	}
	select {
	case <-b.Frames():
		t.Fatal("unexpected extra frame")
	default:
	}

	b.Close()
	b.Close()
	if _, ok := <-b.Frames(); ok {
		t.Error("tap should be closed")
	}
}

func TestBusTapNeverBlocks(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()
	b.Load(TrackInfo{}, constClip(SampleRate*10, 1))
	done := make(chan struct{})
	go func() {
		b.Mix(0, SampleRate*10) // 500 frames into a 100-slot tap
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Mix blocked on an unread tap")
	}
}
