// Package stream relays the mixing bus of the running export to live
// listeners over HTTP (MP3) and WebRTC (Opus).
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/satindergrewal/lyricast/internal/audio"
)

// Broadcaster fans out PCM frames from one source to N listeners.
type Broadcaster struct {
	log *slog.Logger

	mu        sync.RWMutex
	listeners map[*Listener]struct{}

	busMu sync.Mutex
	bus   *audio.Bus
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16 // buffered channel of 20ms PCM frames
	done chan struct{}
	once sync.Once
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		log:       logger,
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener. Returns a Listener that receives frames.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Safe to call twice.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run reads frames from source and fans out to all listeners.
// Slow listeners get frames dropped rather than blocking the broadcast.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					// listener too slow, drop frame to keep broadcast moving
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Attach relays bus until its monitor tap closes at the end of the session.
// It returns immediately.
func (b *Broadcaster) Attach(ctx context.Context, bus *audio.Bus) {
	b.busMu.Lock()
	b.bus = bus
	b.busMu.Unlock()
	b.log.Info("monitor attached", "listeners", b.ListenerCount())

	go func() {
		b.Run(ctx, bus.Frames())
		b.busMu.Lock()
		if b.bus == bus {
			b.bus = nil
		}
		b.busMu.Unlock()
		b.log.Info("monitor detached")
	}()
}

// NowPlaying describes what the monitor is relaying.
type NowPlaying struct {
	Live      bool    `json:"live"`
	Track     int     `json:"track"`
	Title     string  `json:"title,omitempty"`
	Artist    string  `json:"artist,omitempty"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Listeners int     `json:"listeners"`
}

// NowPlaying returns the attached bus's track and position.
func (b *Broadcaster) NowPlaying() NowPlaying {
	np := NowPlaying{Listeners: b.ListenerCount()}
	b.busMu.Lock()
	bus := b.bus
	b.busMu.Unlock()
	if bus == nil {
		return np
	}
	info, pos, dur := bus.Status()
	np.Live = true
	np.Track = info.Index
	np.Title = info.Title
	np.Artist = info.Artist
	np.Position = pos.Round(time.Millisecond).Seconds()
	np.Duration = dur.Round(time.Millisecond).Seconds()
	return np
}
