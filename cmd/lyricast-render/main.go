// Command lyricast-render renders a project file to a video in the output
// directory. On a terminal it shows a progress view; otherwise it logs.
// Interrupting aborts the export and discards the partial output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gogpu/gg"
	"golang.org/x/term"

	"github.com/satindergrewal/lyricast/internal/config"
	"github.com/satindergrewal/lyricast/internal/encode"
	"github.com/satindergrewal/lyricast/internal/ffmpeg"
	"github.com/satindergrewal/lyricast/internal/project"
	"github.com/satindergrewal/lyricast/internal/session"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitAborted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type flags struct {
	outDir     string
	codec      string
	quality    string
	resolution int
	fps        int
	plain      bool
	fast       bool
}

func parseFlags(args []string, stderr io.Writer) (flags, string, error) {
	var f flags
	fs := flag.NewFlagSet("lyricast-render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.outDir, "o", "", "output directory (default $LYRICAST_OUTPUT_DIR)")
	fs.StringVar(&f.codec, "codec", "", "preferred codec: h264, vp9, vp8, av1, mpeg4")
	fs.StringVar(&f.quality, "quality", "", "low, medium or high")
	fs.IntVar(&f.resolution, "resolution", 0, "resolution tier: 360, 480, 720, 1080, 1440, 2160")
	fs.IntVar(&f.fps, "fps", 0, "frame rate")
	fs.BoolVar(&f.plain, "plain", false, "log lines instead of the progress view")
	fs.BoolVar(&f.fast, "fast", false, "render as fast as the encoder allows instead of in real time")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: lyricast-render [flags] project.yaml")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return f, "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return f, "", errors.New("expected exactly one project file")
	}
	return f, fs.Arg(0), nil
}

// override applies command-line render settings on top of the project's.
func (f flags) override(rc *project.RenderConfig) {
	if f.codec != "" {
		rc.Codec = strings.ToLower(f.codec)
	}
	if f.quality != "" {
		rc.Quality = strings.ToLower(f.quality)
	}
	if f.resolution != 0 {
		rc.Resolution = f.resolution
	}
	if f.fps != 0 {
		rc.FrameRate = f.fps
	}
}

func run(args []string, stdout, stderr *os.File) int {
	f, path, err := parseFlags(args, stderr)
	if err != nil {
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "lyricast-render: %v\n", err)
		return exitUsage
	}
	if f.outDir != "" {
		cfg.OutputDir = f.outDir
	}
	ffmpeg.FFmpegPath = cfg.FFmpegPath
	ffmpeg.FFprobePath = cfg.FFprobePath

	p, err := project.Load(path, cfg.RenderDefaults())
	if err != nil {
		fmt.Fprintf(stderr, "lyricast-render: %v\n", err)
		return exitUsage
	}
	f.override(&p.Render)

	interactive := !f.plain && term.IsTerminal(int(stdout.Fd()))

	// The progress view owns the terminal; logs would tear it.
	logger := cfg.NewLogger(stderr)
	if interactive {
		logger = slog.New(slog.DiscardHandler)
	}
	gg.SetLogger(logger.With("component", "gg"))

	var clock session.Clock = session.WallClock{}
	if f.fast {
		clock = session.FastClock{}
	}

	updates := make(chan session.Progress, 64)
	ctrl := session.NewController(session.Options{
		AssetTimeout:         cfg.AssetTimeout,
		TrackTimeout:         cfg.TrackTimeout,
		TrailingDelay:        cfg.TrailingDelay,
		FinalizeOnTrackError: cfg.FinalizeOnTrackError,
		Clock:                clock,
		Logger:               logger,
		OnProgress: func(pr session.Progress) {
			select {
			case updates <- pr:
			default:
			}
		},
		// Nothing is reported after the outcome.
		OnFinish: func(session.Outcome) { close(updates) },
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := ctrl.Start(ctx, p)
	if err != nil {
		var ce *encode.CapabilityError
		if errors.As(err, &ce) {
			fmt.Fprintf(stderr, "lyricast-render: %v; check that ffmpeg was built with one of these encoders\n", err)
		} else {
			fmt.Fprintf(stderr, "lyricast-render: %v\n", err)
		}
		return exitFailed
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Abort()
		case <-s.Done():
		}
	}()

	var o session.Outcome
	if interactive {
		m := newModel(p.ArtifactTitle(), s.Abort, updates, s.Wait)
		if _, err := tea.NewProgram(m, tea.WithOutput(stdout), tea.WithContext(ctx)).Run(); err != nil &&
			!errors.Is(err, tea.ErrProgramKilled) {
			s.Abort()
			fmt.Fprintf(stderr, "lyricast-render: %v\n", err)
		}
		o = s.Wait()
	} else {
		o = watchPlain(updates, s.Wait, logger)
	}

	return finish(o, cfg.OutputDir, stdout, stderr)
}

// finish saves whatever the session produced and maps the outcome to an exit
// code.
func finish(o session.Outcome, dir string, stdout, stderr io.Writer) int {
	if o.Artifact != nil {
		path, err := o.Artifact.Save(dir)
		if err != nil {
			fmt.Fprintf(stderr, "lyricast-render: %v\n", err)
			return exitFailed
		}
		fmt.Fprintln(stdout, path)
	}
	return exitCode(o, stderr)
}

func exitCode(o session.Outcome, stderr io.Writer) int {
	switch o.Status {
	case session.Succeeded:
		return exitOK
	case session.AbortedByUser:
		fmt.Fprintln(stderr, "lyricast-render: export aborted")
		return exitAborted
	}
	fmt.Fprintf(stderr, "lyricast-render: export failed: %v\n", o.Err)
	return exitFailed
}
