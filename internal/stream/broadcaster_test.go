package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/satindergrewal/lyricast/internal/audio"
)

// --- Fan-out ---

func frameOf(v int16) []int16 {
	f := make([]int16, audio.FrameSamples)
	for i := range f {
		f[i] = v
	}
	return f
}

// drain empties l.C without blocking and returns how many frames it held.
func drain(l *Listener) int {
	n := 0
	for {
		select {
		case <-l.C:
			n++
		default:
			return n
		}
	}
}

func TestListenerLifecycle(t *testing.T) {
	b := NewBroadcaster(nil)
	a, c := b.Subscribe(), b.Subscribe()
	if n := b.ListenerCount(); n != 2 {
		t.Fatalf("ListenerCount = %d, want 2", n)
	}

	b.Unsubscribe(a)
	select {
	case <-a.done:
	default:
		t.Error("done not closed after Unsubscribe")
	}
	b.Unsubscribe(a)
	b.Unsubscribe(c)
	if n := b.ListenerCount(); n != 0 {
		t.Errorf("ListenerCount = %d, want 0", n)
	}
}

func TestRunFansOut(t *testing.T) {
	defer leaktest.Check(t)()
	b := NewBroadcaster(nil)
	listeners := make([]*Listener, 4)
	for i := range listeners {
		listeners[i] = b.Subscribe()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 2)
	go b.Run(ctx, source)
	source <- frameOf(-7)

	for i, l := range listeners {
		select {
		case got := <-l.C:
			if len(got) != audio.FrameSamples || got[0] != -7 || got[len(got)-1] != -7 {
				t.Errorf("listener %d: frame len=%d first=%d", i, len(got), got[0])
			}
		case <-time.After(time.Second):
			t.Fatalf("listener %d timed out", i)
		}
		b.Unsubscribe(l)
	}
}

func TestRunDropsForSlowListener(t *testing.T) {
	b := NewBroadcaster(nil)
	slow, fast := b.Subscribe(), b.Subscribe()
	defer b.Unsubscribe(slow)
	defer b.Unsubscribe(fast)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16)
	go b.Run(ctx, source)

	const sent = 200
	received := 0
	for i := 0; i < sent; i++ {
		source <- frameOf(int16(i))
		received += drain(fast)
	}
	time.Sleep(50 * time.Millisecond)
	received += drain(fast)

	if n := drain(slow); n != cap(slow.C) {
		t.Errorf("slow listener held %d frames, want its buffer of %d", n, cap(slow.C))
	}
	if received != sent {
		t.Errorf("fast listener got %d frames, want %d", received, sent)
	}
}

func TestRunStops(t *testing.T) {
	tests := []struct {
		name string
		stop func(cancel context.CancelFunc, source chan []int16)
	}{
		{"context cancelled", func(cancel context.CancelFunc, _ chan []int16) { cancel() }},
		{"source closed", func(_ context.CancelFunc, source chan []int16) { close(source) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBroadcaster(nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			source := make(chan []int16)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Run(ctx, source)
			}()
			tt.stop(cancel, source)

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return")
			}
		})
	}
}

// --- Bus attachment ---

func TestAttachRelaysBus(t *testing.T) {
	defer leaktest.Check(t)()
	b := NewBroadcaster(nil)
	l := b.Subscribe()
	defer b.Unsubscribe(l)

	bus := audio.NewBus(nil)
	clip := &audio.Clip{Samples: make([]int16, audio.SampleRate*audio.Channels)}
	for i := range clip.Samples {
		clip.Samples[i] = 1000
	}
	bus.Load(audio.TrackInfo{Index: 1, Title: "Song", Artist: "Band"}, clip)
	b.Attach(context.Background(), bus)

	np := b.NowPlaying()
	if !np.Live || np.Title != "Song" || np.Track != 1 || np.Listeners != 1 {
		t.Errorf("NowPlaying = %+v", np)
	}
	if np.Duration != 1 {
		t.Errorf("Duration = %v, want 1", np.Duration)
	}

	bus.Mix(0, audio.FrameSize)
	select {
	case frame := <-l.C:
		if len(frame) != audio.FrameSamples || frame[0] != 1000 {
			t.Errorf("frame len=%d first=%d", len(frame), frame[0])
		}
	case <-time.After(time.Second):
		t.Fatal("no frame relayed from the bus")
	}
	if np := b.NowPlaying(); np.Position != 0.02 {
		t.Errorf("Position = %v, want 0.02", np.Position)
	}

	bus.Close()
	deadline := time.Now().Add(2 * time.Second)
	for b.NowPlaying().Live {
		if time.Now().After(deadline) {
			t.Fatal("monitor still live after the bus closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
