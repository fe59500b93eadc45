package encode

import "sync"

// Accumulator collects encoded chunks as they arrive.
type Accumulator struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

// Write appends a copy of p as one chunk.
func (a *Accumulator) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	a.mu.Lock()
	a.chunks = append(a.chunks, chunk)
	a.size += len(p)
	a.mu.Unlock()
	return len(p), nil
}

// Len returns the number of bytes collected.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// Chunks returns the number of chunks collected.
func (a *Accumulator) Chunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunks)
}

// Bytes concatenates every chunk in arrival order.
func (a *Accumulator) Bytes() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]byte, 0, a.size)
	for _, c := range a.chunks {
		out = append(out, c...)
	}
	return out
}

// Reset discards everything collected.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.chunks = nil
	a.size = 0
	a.mu.Unlock()
}
