package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/satindergrewal/lyricast/internal/timeline"
)

// Result is the outcome of one bounded wait.
type Result int

const (
	Ready Result = iota
	TimedOut
	Aborted
	Failed
)

var resultNames = map[Result]string{
	Ready:    "ready",
	TimedOut: "timed-out",
	Aborted:  "aborted",
	Failed:   "failed",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return "unknown"
}

// Await runs fn under a timeout derived from ctx and classifies the outcome.
// If the wait ends first, a value fn produces later is passed to release.
// Await returns no later than the timeout even when fn ignores its context.
func Await[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), release func(T)) (T, Result, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, Aborted, err
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(wctx)
		ch <- outcome{v, err}
	}()

	select {
	case o := <-ch:
		if o.err == nil {
			return o.v, Ready, nil
		}
		return zero, classify(ctx, wctx, o.err), o.err
	case <-wctx.Done():
		go func() {
			if o := <-ch; o.err == nil && release != nil {
				release(o.v)
			}
		}()
		return zero, classify(ctx, wctx, wctx.Err()), wctx.Err()
	}
}

func classify(parent, wait context.Context, err error) Result {
	switch {
	case parent.Err() != nil:
		return Aborted
	case errors.Is(wait.Err(), context.DeadlineExceeded):
		return TimedOut
	default:
		return Failed
	}
}

// Report records how one asset resolved.
type Report struct {
	ID     string
	Kind   timeline.Kind
	Result Result
	Err    error
}

// Cache maps slide ids to ready handles for one session. Missing ids are
// skipped assets.
type Cache struct {
	mu      sync.RWMutex
	handles map[string]Handle
	cover   *ImageHandle
	reports []Report
	closed  bool
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{handles: make(map[string]Handle)}
}

// Put stores a handle, closing any handle it replaces.
func (c *Cache) Put(id string, h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		h.Close()
		return
	}
	if old, ok := c.handles[id]; ok && old != h {
		old.Close()
	}
	c.handles[id] = h
}

// Get returns the handle for a slide id.
func (c *Cache) Get(id string) (Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handles[id]
	return h, ok
}

// SetCover stores the cover art for the current track; nil clears it.
func (c *Cache) SetCover(h *ImageHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cover = h
}

// Cover returns the current cover art, or nil.
func (c *Cache) Cover() *ImageHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cover
}

// Len returns the number of ready handles.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// Reports returns how each asset of the last preload resolved.
func (c *Cache) Reports() []Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Report(nil), c.reports...)
}

// Close releases every handle. Safe to call twice.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, h := range c.handles {
		h.Close()
		delete(c.handles, id)
	}
	c.cover = nil
}

// Preloader resolves every slide of a track into the session cache. Each
// asset gets its own bounded wait; failures and timeouts are skipped.
type Preloader struct {
	loader  Loader
	timeout time.Duration
	log     *slog.Logger
}

// NewPreloader creates a preloader with a per-asset timeout.
func NewPreloader(loader Loader, timeout time.Duration, logger *slog.Logger) *Preloader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Preloader{loader: loader, timeout: timeout, log: logger}
}

// Preload loads slides not yet in cache, plus the cover art, in parallel.
// It returns ctx.Err() when cancelled; every handle loaded so far stays in
// cache for the caller to release.
func (p *Preloader) Preload(ctx context.Context, cache *Cache, slides []timeline.Slide, cover string) error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reports []Report
	)
	record := func(r Report) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
		if r.Result != Ready {
			p.log.Warn("asset skipped", "id", r.ID, "kind", r.Kind, "result", r.Result, "err", r.Err)
		}
	}

	seen := make(map[string]bool)
	for _, s := range slides {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		if _, ok := cache.Get(s.ID); ok {
			continue
		}
		wg.Add(1)
		go func(s timeline.Slide) {
			defer wg.Done()
			h, res, err := Await(ctx, p.timeout, func(ctx context.Context) (Handle, error) {
				return p.load(ctx, s)
			}, closeHandle)
			if res == Ready {
				cache.Put(s.ID, h)
			}
			record(Report{ID: s.ID, Kind: s.Kind, Result: res, Err: err})
		}(s)
	}

	cache.SetCover(nil)
	if cover != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, res, err := Await(ctx, p.timeout, func(ctx context.Context) (*ImageHandle, error) {
				return p.loader.LoadImage(ctx, cover)
			}, nil)
			if res == Ready {
				cache.SetCover(h)
			}
			record(Report{ID: "cover", Kind: timeline.KindImage, Result: res, Err: err})
		}()
	}
	wg.Wait()

	cache.mu.Lock()
	cache.reports = reports
	cache.mu.Unlock()

	return ctx.Err()
}

func (p *Preloader) load(ctx context.Context, s timeline.Slide) (Handle, error) {
	switch s.Kind {
	case timeline.KindImage:
		h, err := p.loader.LoadImage(ctx, s.Source)
		if err != nil {
			return nil, err
		}
		return h, nil
	case timeline.KindVideo:
		h, err := p.loader.LoadVideo(ctx, s.Source, !s.IsMuted())
		if err != nil {
			return nil, err
		}
		return h, nil
	case timeline.KindAudio:
		h, err := p.loader.LoadAudio(ctx, s.Source)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, fmt.Errorf("unknown slide kind %s", s.Kind)
}

func closeHandle(h Handle) {
	if h != nil {
		h.Close()
	}
}
