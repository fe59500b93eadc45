package ffmpeg

import (
	"bytes"
	"strings"
	"sync"
)

// lineFunc calls fn for each complete line written to it.
type lineFunc struct {
	buf bytes.Buffer
	fn  func(line string)
}

func newLineFunc(fn func(line string)) *lineFunc {
	return &lineFunc{fn: fn}
}

func (l *lineFunc) Write(p []byte) (int, error) {
	l.buf.Write(p)
	b := l.buf.Bytes()
	pos := 0
	for {
		i := bytes.IndexAny(b[pos:], "\n\r")
		if i < 0 {
			break
		}
		if i > 0 {
			l.fn(string(b[pos : pos+i]))
		}
		pos += i + 1
	}
	rest := append([]byte(nil), b[pos:]...)
	l.buf.Reset()
	l.buf.Write(rest)
	return len(p), nil
}

// Close flushes a trailing partial line.
func (l *lineFunc) Close() error {
	if l.buf.Len() > 0 {
		l.fn(l.buf.String())
	}
	l.buf.Reset()
	return nil
}

// tail keeps the last n lines written to it. Safe for concurrent use.
type tail struct {
	mu      sync.Mutex
	w       *lineFunc
	lines   []string
	current int
	count   int
}

func newTail(n int) *tail {
	t := &tail{lines: make([]string, n)}
	t.w = newLineFunc(t.add)
	return t
}

func (t *tail) add(line string) {
	t.lines[t.current] = line
	t.current = (t.current + 1) % len(t.lines)
	if t.count < len(t.lines) {
		t.count++
	}
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.Write(p)
}

func (t *tail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.Close()
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, t.count)
	start := (t.current - t.count + len(t.lines)) % len(t.lines)
	for i := 0; i < t.count; i++ {
		out = append(out, t.lines[(start+i)%len(t.lines)])
	}
	return strings.Join(out, "\n")
}
