// Package ffmpeg builds and runs ffmpeg and ffprobe commands. Inputs and
// outputs may be file names or Go readers/writers; the latter are connected
// through extra child file descriptors so several can be piped at once.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// Paths to the binaries. Set once at startup from configuration.
var (
	FFmpegPath  = "ffmpeg"
	FFprobePath = "ffprobe"
)

// Input is one -i argument with its options.
type Input struct {
	File    any // string or io.Reader
	Format  string
	Options map[string]string
	Flags   []string
}

// Output is one output file with its options.
type Output struct {
	File    any // string or io.Writer
	Format  string
	Options map[string]string
	Flags   []string
}

// Cmd is an ffmpeg invocation.
type Cmd struct {
	Flags   []string
	Inputs  []*Input
	Outputs []*Output

	StderrLines int // lines of stderr kept for errors, default 50
	ProgressFn  func(p Progress)
	Logger      *slog.Logger

	cmd      *procCmd
	stderr   *tail
	progress *lineFunc
	current  Progress
}

func sortedOptions(m map[string]string, suffix string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(m)*2)
	for _, k := range keys {
		opt := k
		if !strings.HasPrefix(opt, "-") {
			opt = "-" + opt
		}
		args = append(args, opt+suffix, m[k])
	}
	return args
}

type (
	readerFn func(index int, r io.Reader) (string, error)
	writerFn func(index int, w io.Writer) (string, error)
)

func (c *Cmd) buildArgs(inFn readerFn, outFn writerFn) ([]string, error) {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}
	args = append(args, c.Flags...)

	if c.ProgressFn != nil {
		c.progress = newLineFunc(c.progressLine)
		a, err := outFn(-1, c.progress)
		if err != nil {
			return nil, err
		}
		args = append(args, "-progress", a)
	}

	for i, in := range c.Inputs {
		args = append(args, sortedOptions(in.Options, "")...)
		args = append(args, in.Flags...)
		if in.Format != "" {
			args = append(args, "-f", in.Format)
		}
		args = append(args, "-i")
		switch f := in.File.(type) {
		case string:
			args = append(args, f)
		case io.Reader:
			a, err := inFn(i, f)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		default:
			return nil, fmt.Errorf("input %d: file must be string or io.Reader, got %T", i, in.File)
		}
	}

	for i, out := range c.Outputs {
		args = append(args, sortedOptions(out.Options, "")...)
		args = append(args, out.Flags...)
		if out.Format != "" {
			args = append(args, "-f", out.Format)
		}
		switch f := out.File.(type) {
		case string:
			args = append(args, f)
		case io.Writer:
			a, err := outFn(i, f)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		default:
			return nil, fmt.Errorf("output %d: file must be string or io.Writer, got %T", i, out.File)
		}
	}
	return args, nil
}

// Args returns the argument list with placeholder pipe names.
func (c *Cmd) Args() ([]string, error) {
	return c.buildArgs(
		func(i int, _ io.Reader) (string, error) { return fmt.Sprintf("pipe-input:%d", i), nil },
		func(i int, _ io.Writer) (string, error) { return fmt.Sprintf("pipe-output:%d", i), nil },
	)
}

func (c *Cmd) progressLine(line string) {
	if ParseProgress(&c.current, line) {
		c.ProgressFn(c.current)
		c.current = Progress{}
	}
}

// Start launches ffmpeg. The process is killed when ctx is cancelled.
func (c *Cmd) Start(ctx context.Context) error {
	c.cmd = newProcCmd(ctx, FFmpegPath)

	args, err := c.buildArgs(
		func(_ int, r io.Reader) (string, error) {
			fd, err := c.cmd.extraIn(r)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("pipe:%d", fd), nil
		},
		func(_ int, w io.Writer) (string, error) {
			fd, err := c.cmd.extraOut(w)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("pipe:%d", fd), nil
		},
	)
	if err != nil {
		closeAll(c.cmd.closeAfterStart)
		closeAll(c.cmd.closeAfterWait)
		return err
	}

	n := c.StderrLines
	if n == 0 {
		n = 50
	}
	c.stderr = newTail(n)
	c.cmd.Stderr = c.stderr
	c.cmd.Args = append(c.cmd.Args, args...)

	if c.Logger != nil {
		c.Logger.Debug("ffmpeg start", "args", strings.Join(args, " "))
	}
	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", FFmpegPath, err)
	}
	return nil
}

// Wait waits for ffmpeg to exit. A failed run's error carries the tail of
// stderr.
func (c *Cmd) Wait() error {
	if c.cmd == nil {
		return errors.New("ffmpeg: not started")
	}
	err := c.cmd.Wait()
	if c.progress != nil {
		c.progress.Close()
	}
	c.stderr.Close()
	if err != nil {
		if msg := c.stderr.String(); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// Run starts ffmpeg and waits for it to finish.
func (c *Cmd) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	return c.Wait()
}

// Stderr returns the buffered tail of stderr.
func (c *Cmd) Stderr() string {
	if c.stderr == nil {
		return ""
	}
	return c.stderr.String()
}
