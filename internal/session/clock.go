package session

import "time"

// Clock paces the scheduling loop. Playback time is derived from the tick
// index, never from the clock.
type Clock interface {
	Ticker(d time.Duration) (<-chan time.Time, func())
	After(d time.Duration) <-chan time.Time
}

// WallClock is the real-time clock.
type WallClock struct{}

func (WallClock) Ticker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (WallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FastClock fires every tick and timer at once, so a render runs as fast
// as the encoder accepts frames.
type FastClock struct{}

func (FastClock) Ticker(time.Duration) (<-chan time.Time, func()) { return firedChan(), func() {} }
func (FastClock) After(time.Duration) <-chan time.Time            { return firedChan() }

func firedChan() <-chan time.Time {
	ch := make(chan time.Time)
	close(ch)
	return ch
}
