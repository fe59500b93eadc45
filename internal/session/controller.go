// Package session sequences a render: it preloads assets, plays each track
// of the queue through the mixing bus and compositor, feeds the encoder on a
// fixed-interval tick and hands off the artifact. One Controller owns at
// most one Session at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/lyricast/internal/assets"
	"github.com/satindergrewal/lyricast/internal/audio"
	"github.com/satindergrewal/lyricast/internal/encode"
	"github.com/satindergrewal/lyricast/internal/ffmpeg"
	"github.com/satindergrewal/lyricast/internal/project"
)

// Options configure a Controller. Zero values get production defaults.
type Options struct {
	AssetTimeout         time.Duration
	TrackTimeout         time.Duration
	TrailingDelay        time.Duration
	FinalizeOnTrackError bool

	Clock        Clock
	NewLoader    func(width, height, fps int) assets.Loader // called once per session; closed after it if an io.Closer
	NewEncoder   func(s encode.Settings) encode.Encoder
	Capabilities func(ctx context.Context) (encode.Support, error)

	// OnProgress receives state changes and per-track progress. Called from
	// the session goroutine; must not block.
	OnProgress func(Progress)
	// OnFinish receives every terminal outcome.
	OnFinish func(Outcome)
	// OnBus is called with each session's mixing bus before playback.
	OnBus func(*audio.Bus)

	Logger *slog.Logger
}

// Controller starts, aborts and reports on render sessions.
type Controller struct {
	opts Options
	log  *slog.Logger

	capsMu sync.Mutex
	caps   encode.Support // nil until a query succeeds

	mu     sync.Mutex
	active *Session
	latest *Outcome
}

// NewController creates a controller.
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.AssetTimeout <= 0 {
		opts.AssetTimeout = 5 * time.Second
	}
	if opts.TrackTimeout <= 0 {
		opts.TrackTimeout = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = WallClock{}
	}
	if opts.NewLoader == nil {
		logger := opts.Logger
		// Off the wall clock nothing paces decoding, so video frames are
		// awaited instead of sampled.
		var wait time.Duration
		if _, wall := opts.Clock.(WallClock); !wall {
			wait = opts.AssetTimeout
		}
		opts.NewLoader = func(w, h, fps int) assets.Loader {
			l := assets.NewMediaLoader(w, h, fps, nil, logger)
			l.FrameWait = wait
			return l
		}
	}
	if opts.NewEncoder == nil {
		logger := opts.Logger
		opts.NewEncoder = func(s encode.Settings) encode.Encoder {
			return encode.NewFFmpegEncoder(s, logger)
		}
	}
	if opts.Capabilities == nil {
		opts.Capabilities = func(ctx context.Context) (encode.Support, error) {
			return ffmpeg.LoadCapabilities(ctx)
		}
	}
	return &Controller{opts: opts, log: opts.Logger}
}

// capsTimeout bounds one host capability query.
const capsTimeout = 30 * time.Second

// capabilities queries the host and keeps only a successful result, so a
// failed query is retried on the next Start. The query is detached from
// ctx: a caller that goes away must not poison later exports.
func (c *Controller) capabilities(ctx context.Context) (encode.Support, error) {
	c.capsMu.Lock()
	defer c.capsMu.Unlock()
	if c.caps != nil {
		return c.caps, nil
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), capsTimeout)
	defer cancel()
	caps, err := c.opts.Capabilities(pctx)
	if err != nil {
		return nil, err
	}
	c.caps = caps
	return caps, nil
}

// Start validates p, negotiates a codec and launches a session in the
// background. ctx bounds only the synchronous checks; the session outlives
// it and ends through Abort or completion.
func (c *Controller) Start(ctx context.Context, p *project.Project) (*Session, error) {
	if p == nil || len(p.Tracks) == 0 {
		return nil, ErrEmptyQueue
	}
	if err := p.Render.Validate(); err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}

	if c.Active() != nil {
		return nil, ErrBusy
	}
	caps, err := c.capabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe encoders: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, ErrBusy
	}
	codec, err := encode.Negotiate(p.Render.Codec, caps)
	if err != nil {
		return nil, err
	}
	if codec.Name != p.Render.Codec {
		c.log.Warn("codec fallback", "preferred", p.Render.Codec, "using", codec.Name)
	}

	// A new export revokes the previous artifact.
	c.latest = nil

	s := newSession(context.WithoutCancel(ctx), uuid.NewString(), p, codec, c)
	c.active = s
	go s.run()
	return s, nil
}

// Abort requests the active session to stop. It reports false when no
// session is running.
func (c *Controller) Abort() bool {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return false
	}
	s.Abort()
	return true
}

// Active returns the running session, if any.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Status returns the active session's progress, or an idle snapshot.
func (c *Controller) Status() Progress {
	if s := c.Active(); s != nil {
		return s.Progress()
	}
	return Progress{State: Idle}
}

// Latest returns the most recent outcome since the last Start.
func (c *Controller) Latest() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Outcome{}, false
	}
	return *c.latest, true
}

func (c *Controller) finish(s *Session, o Outcome) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.latest = &o
	c.mu.Unlock()

	attrs := []any{"session", o.ID, "status", o.Status, "codec", o.Codec, "tracks", o.Tracks,
		"elapsed", o.Ended.Sub(o.Started).Round(time.Millisecond)}
	switch {
	case o.Status == Succeeded:
		c.log.Info("export finished", append(attrs, "file", o.Artifact.Name, "bytes", o.Artifact.Size())...)
	case errors.Is(o.Err, ErrAborted):
		c.log.Info("export aborted", attrs...)
	default:
		c.log.Error("export failed", append(attrs, "err", o.Err)...)
	}
	if c.opts.OnFinish != nil {
		c.opts.OnFinish(o)
	}
}
