package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/satindergrewal/lyricast/internal/audio"
	"github.com/satindergrewal/lyricast/internal/ffmpeg"
)

func requireEncoder(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(ffmpeg.FFmpegPath); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	caps, err := ffmpeg.LoadCapabilities(context.Background())
	if err != nil || !caps.HasEncoder(name) {
		t.Skipf("ffmpeg lacks %s", name)
	}
}

// --- HTTP MP3 ---

func TestHTTPStreamEncodesMP3(t *testing.T) {
	requireEncoder(t, "libmp3lame")

	b := NewBroadcaster(nil)
	srv := httptest.NewServer(NewHTTPHandler(b, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 50)
	go b.Run(ctx, source)
	go func() {
		tick := time.NewTicker(audio.FrameDuration)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				select {
				case source <- make([]int16, audio.FrameSamples):
				default:
				}
			}
		}
	}()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q, want audio/mpeg", ct)
	}
	buf := make([]byte, 512)
	if _, err := io.ReadAtLeast(resp.Body, buf, len(buf)); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !bytes.HasPrefix(buf, []byte("ID3")) && !(buf[0] == 0xFF && buf[1]&0xE0 == 0xE0) {
		t.Errorf("stream does not start with an MP3 header: % x", buf[:4])
	}
	if b.ListenerCount() != 1 {
		t.Errorf("ListenerCount = %d, want 1", b.ListenerCount())
	}
}

// --- WebRTC ---

func TestWebRTCRejectsBadRequests(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(nil), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/monitor/offer", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/monitor/offer", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/monitor/offer", strings.NewReader(`{"type":"offer"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty SDP status = %d, want 400", rec.Code)
	}
}

func TestWebRTCOfferAnswer(t *testing.T) {
	b := NewBroadcaster(nil)
	h := NewWebRTCHandler(b, nil)
	defer h.Close()
	srv := httptest.NewServer(h)
	defer srv.Close()

	client, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	defer client.Close()
	if _, err := client.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
		t.Fatalf("AddTransceiver: %v", err)
	}
	offer, err := client.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	gathered := webrtc.GatheringCompletePromise(client)
	if err := client.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	<-gathered

	body, _ := json.Marshal(client.LocalDescription())
	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST offer: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var answer webrtc.SessionDescription
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer || !strings.Contains(answer.SDP, "opus") {
		t.Errorf("answer type=%v, opus in SDP=%v", answer.Type, strings.Contains(answer.SDP, "opus"))
	}
	if err := client.SetRemoteDescription(answer); err != nil {
		t.Errorf("SetRemoteDescription: %v", err)
	}
	if h.PeerCount() != 1 || b.ListenerCount() != 1 {
		t.Errorf("peers=%d listeners=%d, want 1 and 1", h.PeerCount(), b.ListenerCount())
	}

	h.Close()
	if h.PeerCount() != 0 || b.ListenerCount() != 0 {
		t.Errorf("after Close: peers=%d listeners=%d, want 0 and 0", h.PeerCount(), b.ListenerCount())
	}
}
