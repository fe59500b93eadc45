package assets

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/satindergrewal/lyricast/internal/audio"
	"github.com/satindergrewal/lyricast/internal/timeline"
)

type closeCounter struct {
	n atomic.Int32
}

type countedFrames struct {
	StillFrames
	closes *closeCounter
}

func (c countedFrames) Close() error {
	c.closes.n.Add(1)
	return nil
}

// fakeLoader resolves refs from a table: a delay, an error, or success.
type fakeLoader struct {
	delay  map[string]time.Duration
	fail   map[string]error
	closes closeCounter

	mu    sync.Mutex
	calls []string
}

func (f *fakeLoader) wait(ctx context.Context, ref string) error {
	f.mu.Lock()
	f.calls = append(f.calls, ref)
	f.mu.Unlock()
	if err := f.fail[ref]; err != nil {
		return err
	}
	if d := f.delay[ref]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func (f *fakeLoader) LoadImage(ctx context.Context, ref string) (*ImageHandle, error) {
	if err := f.wait(ctx, ref); err != nil {
		return nil, err
	}
	return NewImageHandle(solid(color.RGBA{255, 0, 0, 255})), nil
}

func (f *fakeLoader) LoadVideo(ctx context.Context, ref string, withAudio bool) (*VideoHandle, error) {
	if err := f.wait(ctx, ref); err != nil {
		return nil, err
	}
	h := &VideoHandle{Frames: countedFrames{StillFrames{solid(color.RGBA{0, 255, 0, 255})}, &f.closes}}
	if withAudio {
		h.Audio = &audio.Clip{Samples: make([]int16, 96)}
	}
	return h, nil
}

func (f *fakeLoader) LoadAudio(ctx context.Context, ref string) (*AudioHandle, error) {
	if err := f.wait(ctx, ref); err != nil {
		return nil, err
	}
	return &AudioHandle{Clip: &audio.Clip{Samples: make([]int16, 96)}}, nil
}

func slide(id string, kind timeline.Kind, src string) timeline.Slide {
	return timeline.Slide{ID: id, Kind: kind, Source: src, Window: timeline.Window{Start: 0, End: 1}, Volume: 1}
}

func reportsByID(c *Cache) map[string]Report {
	m := make(map[string]Report)
	for _, r := range c.Reports() {
		m[r.ID] = r
	}
	return m
}

// --- Preloader ---

func TestPreloadSkipsFailuresAndTimeouts(t *testing.T) {
	defer leaktest.Check(t)()

	loader := &fakeLoader{
		delay: map[string]time.Duration{"slow.mp4": time.Hour},
		fail:  map[string]error{"broken.png": errors.New("corrupt")},
	}
	p := NewPreloader(loader, 50*time.Millisecond, nil)
	cache := NewCache()
	defer cache.Close()

	slides := []timeline.Slide{
		slide("img", timeline.KindImage, "ok.png"),
		slide("bad", timeline.KindImage, "broken.png"),
		slide("slow", timeline.KindVideo, "slow.mp4"),
		slide("snd", timeline.KindAudio, "sting.wav"),
	}
	start := time.Now()
	if err := p.Preload(context.Background(), cache, slides, "cover.jpg"); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Preload took %v, want bounded by the per-asset timeout", elapsed)
	}

	if _, ok := cache.Get("img"); !ok {
		t.Error("img should be ready")
	}
	if _, ok := cache.Get("bad"); ok {
		t.Error("bad should be skipped")
	}
	if _, ok := cache.Get("slow"); ok {
		t.Error("slow should be skipped")
	}
	if h, ok := cache.Get("snd"); !ok || h.Kind() != timeline.KindAudio {
		t.Error("snd should be a ready audio handle")
	}
	if cache.Cover() == nil {
		t.Error("cover should be loaded")
	}

	reports := reportsByID(cache)
	if reports["bad"].Result != Failed {
		t.Errorf("bad result = %v, want failed", reports["bad"].Result)
	}
	if reports["slow"].Result != TimedOut {
		t.Errorf("slow result = %v, want timed-out", reports["slow"].Result)
	}
	if reports["img"].Result != Ready || reports["cover"].Result != Ready {
		t.Errorf("reports = %+v", reports)
	}
}

func TestPreloadAbort(t *testing.T) {
	defer leaktest.Check(t)()

	loader := &fakeLoader{delay: map[string]time.Duration{"slow.png": time.Hour}}
	p := NewPreloader(loader, time.Hour, nil)
	cache := NewCache()
	defer cache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := p.Preload(ctx, cache, []timeline.Slide{slide("s", timeline.KindImage, "slow.png")}, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Preload err = %v, want context.Canceled", err)
	}
	if r := reportsByID(cache)["s"]; r.Result != Aborted {
		t.Errorf("result = %v, want aborted", r.Result)
	}
}

func TestPreloadSkipsCachedAndDuplicateIDs(t *testing.T) {
	loader := &fakeLoader{}
	p := NewPreloader(loader, time.Second, nil)
	cache := NewCache()
	defer cache.Close()

	shared := slide("shared", timeline.KindImage, "a.png")
	if err := p.Preload(context.Background(), cache, []timeline.Slide{shared, shared}, ""); err != nil {
		t.Fatal(err)
	}
	if err := p.Preload(context.Background(), cache, []timeline.Slide{shared}, ""); err != nil {
		t.Fatal(err)
	}
	if len(loader.calls) != 1 {
		t.Errorf("loader called %d times, want 1", len(loader.calls))
	}
}

func TestPreloadMutedVideoSkipsAudio(t *testing.T) {
	loader := &fakeLoader{}
	p := NewPreloader(loader, time.Second, nil)
	cache := NewCache()
	defer cache.Close()

	muted := true
	s := slide("v", timeline.KindVideo, "v.mp4")
	s.Muted = &muted
	if err := p.Preload(context.Background(), cache, []timeline.Slide{s}, ""); err != nil {
		t.Fatal(err)
	}
	h, _ := cache.Get("v")
	if v := h.(*VideoHandle); v.Audio != nil {
		t.Error("muted video should not decode audio")
	}
}

// --- Cache ---

func TestCacheCloseReleasesHandles(t *testing.T) {
	loader := &fakeLoader{}
	cache := NewCache()
	v, _ := loader.LoadVideo(context.Background(), "a.mp4", false)
	cache.Put("a", v)
	w, _ := loader.LoadVideo(context.Background(), "b.mp4", false)
	cache.Put("a", w) // replaces and closes v

	if got := loader.closes.n.Load(); got != 1 {
		t.Errorf("closes after replace = %d, want 1", got)
	}
	cache.Close()
	cache.Close()
	if got := loader.closes.n.Load(); got != 2 {
		t.Errorf("closes after Close = %d, want 2", got)
	}
	if cache.Len() != 0 {
		t.Error("cache should be empty after Close")
	}
}

// --- Await ---

func TestAwaitIgnoringContextStillBounded(t *testing.T) {
	release := make(chan struct{})
	released := make(chan int, 1)
	start := time.Now()
	_, res, err := Await(context.Background(), 30*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 7, nil
	}, func(v int) { released <- v })
	if res != TimedOut || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("res = %v err = %v, want timed-out", res, err)
	}
	if time.Since(start) > time.Second {
		t.Error("Await not bounded by its timeout")
	}
	close(release)
	select {
	case v := <-released:
		if v != 7 {
			t.Errorf("released %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Error("late value was not released")
	}
}

func TestAwaitAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, res, _ := Await(ctx, time.Second, func(context.Context) (int, error) {
		called = true
		return 0, nil
	}, nil)
	if res != Aborted || called {
		t.Errorf("res = %v called = %v, want aborted without calling fn", res, called)
	}
}

// --- Handles ---

func TestVideoHandleReusesConvertedFrame(t *testing.T) {
	h := &VideoHandle{Frames: StillFrames{solid(color.RGBA{1, 2, 3, 255})}}
	a, ok := h.FrameAt(0)
	if !ok || a == nil {
		t.Fatal("FrameAt should return a frame")
	}
	b, _ := h.FrameAt(1.5)
	if a != b {
		t.Error("unchanged frame should not be converted again")
	}
	if _, ok := (&VideoHandle{Frames: StillFrames{}}).FrameAt(0); ok {
		t.Error("empty source should report no frame")
	}
}

// --- Fetcher ---

func TestFetcherDownloadsOnceAndCleansUp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		png.Encode(w, solid(color.RGBA{9, 9, 9, 255}))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	ctx := context.Background()
	p1, err := f.Local(ctx, srv.URL+"/cover.png")
	if err != nil {
		t.Fatal(err)
	}
	p2, _ := f.Local(ctx, srv.URL+"/cover.png")
	if p1 != p2 || hits.Load() != 1 {
		t.Errorf("paths %q %q hits %d, want one download", p1, p2, hits.Load())
	}
	if local, _ := f.Local(ctx, "/tmp/x.png"); local != "/tmp/x.png" {
		t.Error("local refs should pass through")
	}

	l := NewMediaLoader(16, 9, 30, f, nil)
	h, err := l.LoadImage(ctx, srv.URL+"/cover.png")
	if err != nil || h.W != 4 || h.H != 4 {
		t.Errorf("LoadImage = %+v, %v", h, err)
	}

	l.Close()
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Error("downloaded file should be removed")
	}
}

func TestFetcherHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := NewFetcher(srv.Client()).Local(context.Background(), srv.URL+"/x.png"); err == nil {
		t.Error("expected error for 404")
	}
}
