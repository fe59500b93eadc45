package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"
)

// Fetcher downloads remote media references to local temp files so decoders
// can seek them. Each reference is downloaded once per session.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	local map[string]string
}

// NewFetcher creates a fetcher. A nil client gets a 60s timeout default.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{client: client, local: make(map[string]string)}
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Local returns a local path for ref, downloading it first if remote.
func (f *Fetcher) Local(ctx context.Context, ref string) (string, error) {
	if !IsRemote(ref) {
		return ref, nil
	}
	f.mu.Lock()
	p, ok := f.local[ref]
	f.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := f.download(ctx, ref)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	if prev, ok := f.local[ref]; ok {
		f.mu.Unlock()
		os.Remove(p)
		return prev, nil
	}
	f.local[ref] = p
	f.mu.Unlock()
	return p, nil
}

func (f *Fetcher) download(ctx context.Context, ref string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", ref, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}

	ext := path.Ext(req.URL.Path)
	tmpFile, err := os.CreateTemp("", "lyricast-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("write %s: %w", ref, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("write %s: %w", ref, err)
	}
	return tmpFile.Name(), nil
}

// Cleanup removes every downloaded file.
func (f *Fetcher) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ref, p := range f.local {
		os.Remove(p)
		delete(f.local, ref)
	}
}
