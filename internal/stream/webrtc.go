package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/lyricast/internal/audio"
)

// opusBitrate is the monitor's Opus bitrate in bits per second.
const opusBitrate = 128000

// WebRTCHandler answers SDP offers with a send-only Opus track carrying the
// monitor mix.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	log         *slog.Logger

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]*Listener
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(b *Broadcaster, logger *slog.Logger) *WebRTCHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WebRTCHandler{
		broadcaster: b,
		log:         logger,
		peers:       make(map[*webrtc.PeerConnection]*Listener),
	}
}

// PeerCount returns the number of connected peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

type negotiateError struct {
	status int
	msg    string
	err    error
}

func (e *negotiateError) Error() string { return fmt.Sprintf("%s: %v", e.msg, e.err) }

func fail(status int, msg string, err error) error {
	return &negotiateError{status: status, msg: msg, err: err}
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, track, err := negotiate(r.Context(), offer)
	if err != nil {
		var ne *negotiateError
		if errors.As(err, &ne) {
			h.log.Warn("WebRTC negotiation failed", "remote", r.RemoteAddr, "err", err)
			http.Error(w, ne.msg, ne.status)
		}
		return
	}

	// Subscribe before answering so the first frames after connect are kept.
	listener := h.broadcaster.Subscribe()
	h.mu.Lock()
	h.peers[pc] = listener
	h.mu.Unlock()
	h.log.Info("WebRTC peer connected", "remote", r.RemoteAddr, "total", h.PeerCount())

	go h.streamToPeer(listener, track)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			if h.hangUp(pc) {
				h.log.Info("WebRTC peer disconnected", "state", s.String(), "remaining", h.PeerCount())
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// negotiate builds a peer connection with one Opus track and answers offer
// once ICE gathering completes. Failures are *negotiateError; a cancelled ctx
// returns ctx.Err() with nothing left open.
func negotiate(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, fail(http.StatusInternalServerError, "create peer connection failed", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"audio",
		"lyricast-monitor",
	)
	if err != nil {
		pc.Close()
		return nil, nil, fail(http.StatusInternalServerError, "create audio track failed", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, nil, fail(http.StatusInternalServerError, "add track failed", err)
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, nil, fail(http.StatusBadRequest, "set remote description failed", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, nil, fail(http.StatusInternalServerError, "create answer failed", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, nil, fail(http.StatusInternalServerError, "set local description failed", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return nil, nil, ctx.Err()
	}
	return pc, track, nil
}

// streamToPeer encodes listener frames to Opus until the listener or the
// track goes away.
func (h *WebRTCHandler) streamToPeer(listener *Listener, track *webrtc.TrackLocalStaticSample) {
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.log.Error("WebRTC: opus encoder", "err", err)
		return
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		h.log.Warn("WebRTC: opus bitrate", "err", err)
	}

	packet := make([]byte, 4000)
	for {
		select {
		case <-listener.done:
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, packet)
			if err != nil {
				h.log.Warn("WebRTC: opus encode", "err", err)
				continue
			}
			sample := media.Sample{Data: packet[:n], Duration: audio.FrameDuration}
			if err := track.WriteSample(sample); err != nil {
				return
			}
		}
	}
}

// hangUp forgets pc, stops its listener and closes it. It reports whether pc
// was still registered.
func (h *WebRTCHandler) hangUp(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	listener, ok := h.peers[pc]
	delete(h.peers, pc)
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.broadcaster.Unsubscribe(listener)
	pc.Close()
	return true
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := make([]*webrtc.PeerConnection, 0, len(h.peers))
	for pc := range h.peers {
		peers = append(peers, pc)
	}
	h.mu.Unlock()
	for _, pc := range peers {
		h.hangUp(pc)
	}
}
