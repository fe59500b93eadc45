package ffmpeg

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
)

type closeOnce struct {
	*os.File

	once sync.Once
	err  error
}

func (c *closeOnce) Close() error {
	c.once.Do(func() { c.err = c.File.Close() })
	return c.err
}

// procCmd is an exec.Cmd that can connect readers and writers to extra
// child file descriptors (3, 4, ...) in addition to stdin/stdout.
type procCmd struct {
	*exec.Cmd

	closeAfterStart []io.Closer
	closeAfterWait  []io.Closer
	copyErrCh       chan error
	copyFns         []func() error
}

func newProcCmd(ctx context.Context, name string) *procCmd {
	return &procCmd{Cmd: exec.CommandContext(ctx, name)}
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		c.Close()
	}
}

func (c *procCmd) Start() error {
	if err := c.Cmd.Start(); err != nil {
		closeAll(c.closeAfterStart)
		closeAll(c.closeAfterWait)
		return err
	}
	closeAll(c.closeAfterStart)

	c.copyErrCh = make(chan error, len(c.copyFns))
	for _, fn := range c.copyFns {
		go func(fn func() error) {
			c.copyErrCh <- fn()
		}(fn)
	}
	return nil
}

// Wait waits for the process and every copy goroutine. Readers handed to
// extraIn must reach EOF (or fail) for Wait to return.
func (c *procCmd) Wait() error {
	err := c.Cmd.Wait()

	var copyErr error
	for range c.copyFns {
		if err := <-c.copyErrCh; err != nil && copyErr == nil {
			copyErr = err
		}
	}
	closeAll(c.closeAfterWait)

	if err != nil {
		return err
	}
	return copyErr
}

// extraIn connects r to a readable fd in the child and returns its number.
func (c *procCmd) extraIn(r io.Reader) (uintptr, error) {
	if f, ok := r.(*os.File); ok {
		c.ExtraFiles = append(c.ExtraFiles, f)
		return uintptr(len(c.ExtraFiles)) + 2, nil
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return 0, err
	}
	c.ExtraFiles = append(c.ExtraFiles, pr)
	c.closeAfterStart = append(c.closeAfterStart, pr)
	wc := &closeOnce{File: pw}
	c.closeAfterWait = append(c.closeAfterWait, wc)
	c.copyFns = append(c.copyFns, func() error {
		_, err := io.Copy(wc, r)
		wc.Close()
		return err
	})
	return uintptr(len(c.ExtraFiles)) + 2, nil
}

// extraOut connects w to a writable fd in the child and returns its number.
func (c *procCmd) extraOut(w io.Writer) (uintptr, error) {
	if f, ok := w.(*os.File); ok {
		c.ExtraFiles = append(c.ExtraFiles, f)
		return uintptr(len(c.ExtraFiles)) + 2, nil
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return 0, err
	}
	c.ExtraFiles = append(c.ExtraFiles, pw)
	c.closeAfterStart = append(c.closeAfterStart, pw)
	c.closeAfterWait = append(c.closeAfterWait, pr)
	c.copyFns = append(c.copyFns, func() error {
		_, err := io.Copy(w, pr)
		pr.Close()
		return err
	})
	return uintptr(len(c.ExtraFiles)) + 2, nil
}
