package ffmpeg

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/wader/osleaktest"
)

func leakChecks(t *testing.T) func() {
	leakFn := leaktest.Check(t)
	osLeakFn := osleaktest.Check(t)
	return func() {
		leakFn()
		osLeakFn()
	}
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(FFmpegPath); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	if _, err := exec.LookPath(FFprobePath); err != nil {
		t.Skip("ffprobe not on PATH")
	}
}

// --- Argument building ---

func TestArgs(t *testing.T) {
	c := &Cmd{
		Flags: []string{"-y"},
		Inputs: []*Input{
			{File: &bytes.Buffer{}, Format: "rawvideo", Options: map[string]string{"video_size": "64x36", "pixel_format": "rgba", "framerate": "30"}},
			{File: "song.mp3"},
		},
		Outputs: []*Output{
			{File: &bytes.Buffer{}, Format: "mp4", Options: map[string]string{"c:v": "libx264", "b:v": "2M"}},
		},
	}
	args, err := c.Args()
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(args, " ")
	want := "-nostdin -hide_banner -loglevel error -y " +
		"-framerate 30 -pixel_format rgba -video_size 64x36 -f rawvideo -i pipe-input:0 " +
		"-i song.mp3 " +
		"-b:v 2M -c:v libx264 -f mp4 pipe-output:0"
	if got != want {
		t.Errorf("Args:\n got %s\nwant %s", got, want)
	}
}

func TestArgsRejectsUnknownFileType(t *testing.T) {
	c := &Cmd{Inputs: []*Input{{File: 42}}}
	if _, err := c.Args(); err == nil {
		t.Error("expected error for int input")
	}
}

// --- Progress ---

func TestParseProgress(t *testing.T) {
	var p Progress
	lines := []string{
		"frame=241",
		"fps=79.81",
		"total_size=116071",
		"out_time_us=8674000",
		"speed=2.87x",
	}
	for _, l := range lines {
		if ParseProgress(&p, l) {
			t.Fatalf("%q should not close the block", l)
		}
	}
	if !ParseProgress(&p, "progress=end") {
		t.Fatal("progress= should close the block")
	}
	if p.Frame != 241 || p.TotalSize != 116071 || p.Progress != "end" {
		t.Errorf("parsed = %+v", p)
	}
	if p.OutSeconds() != 8.674 {
		t.Errorf("OutSeconds = %v, want 8.674", p.OutSeconds())
	}
	if p.Speed != 2.87 {
		t.Errorf("Speed = %v, want 2.87", p.Speed)
	}
}

// --- Capability listings ---

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libopus              libopus Opus (codec opus)
`

const muxersOutput = `File formats:
 D. = Demuxing supported
 .E = Muxing supported
 --
  E mp4             MP4 (MPEG-4 Part 14)
  E webm            WebM
  E s16le           PCM signed 16-bit little-endian
`

func TestParseEncoders(t *testing.T) {
	enc, err := ParseEncoders(strings.NewReader(encodersOutput))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"libx264", "libvpx-vp9", "aac", "libopus"} {
		if !enc[name] {
			t.Errorf("encoder %s missing", name)
		}
	}
	if enc["V....."] || enc["Video"] {
		t.Error("legend lines must not be parsed as encoders")
	}
}

func TestParseMuxers(t *testing.T) {
	mux, err := ParseMuxers(strings.NewReader(muxersOutput))
	if err != nil {
		t.Fatal(err)
	}
	if !mux["mp4"] || !mux["webm"] || mux["Muxing"] {
		t.Errorf("muxers = %v", mux)
	}
}

func TestParseListingWithoutSeparator(t *testing.T) {
	if _, err := ParseEncoders(strings.NewReader("garbage\n")); err == nil {
		t.Error("expected error without separator")
	}
}

// --- Stderr tail ---

func TestTailKeepsLastLines(t *testing.T) {
	tl := newTail(2)
	tl.Write([]byte("one\ntwo\nth"))
	tl.Write([]byte("ree\n"))
	if got := tl.String(); got != "two\nthree" {
		t.Errorf("tail = %q", got)
	}
	tl.Write([]byte("partial"))
	tl.Close()
	if got := tl.String(); got != "three\npartial" {
		t.Errorf("tail after close = %q", got)
	}
}

// --- Integration ---

func TestRunPipesAndProbe(t *testing.T) {
	requireFFmpeg(t)
	defer leakChecks(t)()

	ctx := context.Background()
	var wav bytes.Buffer
	gen := &Cmd{
		Inputs: []*Input{{File: "sine=frequency=440:duration=1", Format: "lavfi"}},
		Outputs: []*Output{{
			File:    &wav,
			Format:  "wav",
			Options: map[string]string{"ar": "48000", "ac": "2"},
		}},
	}
	if err := gen.Run(ctx); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := os.WriteFile(path, wav.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := Probe(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasAudio() || res.HasVideo() {
		t.Errorf("streams = %+v", res.Streams)
	}
	if d := res.Duration(); d < 0.9 || d > 1.1 {
		t.Errorf("Duration = %v, want ~1", d)
	}

	// Re-decode the wav from a reader to raw PCM.
	var pcm bytes.Buffer
	dec := &Cmd{
		Inputs:  []*Input{{File: bytes.NewReader(wav.Bytes()), Format: "wav"}},
		Outputs: []*Output{{File: &pcm, Format: "s16le"}},
	}
	if err := dec.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if want := 48000 * 2 * 2; pcm.Len() != want {
		t.Errorf("decoded %d bytes, want %d", pcm.Len(), want)
	}
}

func TestRunFailureCarriesStderr(t *testing.T) {
	requireFFmpeg(t)
	defer leakChecks(t)()

	c := &Cmd{
		Inputs:  []*Input{{File: filepath.Join(t.TempDir(), "missing.wav")}},
		Outputs: []*Output{{File: &bytes.Buffer{}, Format: "s16le"}},
	}
	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for missing input")
	}
	if !strings.Contains(err.Error(), "missing.wav") {
		t.Errorf("error should include stderr tail, got %v", err)
	}
}

func TestLoadCapabilities(t *testing.T) {
	requireFFmpeg(t)
	caps, err := LoadCapabilities(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !caps.HasMuxer("s16le") {
		t.Error("every ffmpeg build should mux s16le")
	}
}
