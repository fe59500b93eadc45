package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/satindergrewal/lyricast/internal/audio"
	"github.com/satindergrewal/lyricast/internal/ffmpeg"
)

// HTTPHandler serves a chunked MP3 audio stream via HTTP.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	log         *slog.Logger
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPHandler{broadcaster: b, log: logger}
}

// flushWriter flushes after every write so MP3 frames reach the client as
// ffmpeg produces them.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("ICY-Name", "lyricast monitor")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	pr, pw := io.Pipe()
	go feedPCM(ctx, listener, pw)

	cmd := &ffmpeg.Cmd{
		Inputs: []*ffmpeg.Input{{
			File:    pr,
			Format:  "s16le",
			Options: map[string]string{"ar": "48000", "ac": "2"},
		}},
		Outputs: []*ffmpeg.Output{{
			File:   flushWriter{w: w, f: flusher},
			Format: "mp3",
			Options: map[string]string{
				"codec:a":       "libmp3lame",
				"b:a":           "192k",
				"fflags":        "nobuffer",
				"flush_packets": "1",
			},
		}},
		Logger: h.log,
	}

	h.log.Info("HTTP listener connected", "remote", r.RemoteAddr, "total", h.broadcaster.ListenerCount())
	defer h.log.Info("HTTP listener disconnected", "remote", r.RemoteAddr)

	if err := cmd.Start(ctx); err != nil {
		h.log.Error("HTTP stream: ffmpeg start", "err", err)
		pr.CloseWithError(err)
		return
	}
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		h.log.Warn("HTTP stream: ffmpeg exited", "err", err)
	}
	cancel()
	pr.Close()
}

// feedPCM writes the listener's frames to w as s16le until ctx ends or the
// listener is dropped.
func feedPCM(ctx context.Context, l *Listener, w *io.PipeWriter) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case frame, ok := <-l.C:
			if !ok {
				return
			}
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}
