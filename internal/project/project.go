// Package project loads a render project: the track queue, the slides and
// captions laid over each track, and the render settings.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/satindergrewal/lyricast/internal/timeline"
)

// ErrEmptyQueue is returned for a project with no tracks.
var ErrEmptyQueue = errors.New("project has no tracks")

// Track is one entry of the render queue.
type Track struct {
	Title    string
	Artist   string
	Cover    string // optional cover art reference
	Audio    string
	Duration float64 // seconds; 0 means resolve on load
	Captions timeline.Captions
	Slides   []timeline.Slide
}

// Project is a validated render request.
type Project struct {
	Title  string
	Tracks []Track
	Render RenderConfig
}

// ArtifactTitle is the title the output file is named from.
func (p *Project) ArtifactTitle() string {
	if p.Title != "" {
		return p.Title
	}
	if len(p.Tracks) > 0 && p.Tracks[0].Title != "" {
		return p.Tracks[0].Title
	}
	return "untitled"
}

// File is the on-disk and over-the-wire form of a project.
type File struct {
	Title  string      `yaml:"title" json:"title"`
	Render RenderFile  `yaml:"render" json:"render"`
	Slides []SlideFile `yaml:"slides" json:"slides"` // laid over every track
	Tracks []TrackFile `yaml:"tracks" json:"tracks"`
}

type TrackFile struct {
	Title    string        `yaml:"title" json:"title"`
	Artist   string        `yaml:"artist" json:"artist"`
	Cover    string        `yaml:"cover" json:"cover"`
	Audio    string        `yaml:"audio" json:"audio"`
	Duration float64       `yaml:"duration" json:"duration"`
	Captions []CaptionFile `yaml:"captions" json:"captions"`
	Slides   []SlideFile   `yaml:"slides" json:"slides"`
}

type CaptionFile struct {
	Time float64 `yaml:"time" json:"time"`
	End  float64 `yaml:"end" json:"end"`
	Text string  `yaml:"text" json:"text"`
}

type SlideFile struct {
	ID     string   `yaml:"id" json:"id"`
	Kind   string   `yaml:"kind" json:"kind"`
	Start  float64  `yaml:"start" json:"start"`
	End    float64  `yaml:"end" json:"end"`
	Source string   `yaml:"source" json:"source"`
	Muted  *bool    `yaml:"muted" json:"muted"`
	Volume *float64 `yaml:"volume" json:"volume"`
}

type RenderFile struct {
	Resolution     int       `yaml:"resolution" json:"resolution"`
	AspectRatio    string    `yaml:"aspect" json:"aspect"`
	FrameRate      int       `yaml:"fps" json:"fps"`
	Codec          string    `yaml:"codec" json:"codec"`
	Quality        string    `yaml:"quality" json:"quality"`
	Display        string    `yaml:"display" json:"display"`
	Animation      string    `yaml:"animation" json:"animation"`
	Align          string    `yaml:"align" json:"align"`
	FontSize       float64   `yaml:"font_size" json:"font_size"`
	Bold           *bool     `yaml:"bold" json:"bold"`
	TextColor      string    `yaml:"text_color" json:"text_color"`
	HighlightColor string    `yaml:"highlight_color" json:"highlight_color"`
	Background     *BGFile   `yaml:"background" json:"background"`
	Metadata       *MetaFile `yaml:"metadata" json:"metadata"`
}

type BGFile struct {
	Slides   *bool    `yaml:"slides" json:"slides"`
	Color    string   `yaml:"color" json:"color"`
	Gradient []string `yaml:"gradient" json:"gradient"`
	Cover    *bool    `yaml:"cover" json:"cover"`
}

type MetaFile struct {
	Cover  *bool `yaml:"cover" json:"cover"`
	Title  *bool `yaml:"title" json:"title"`
	Artist *bool `yaml:"artist" json:"artist"`
}

// Load reads a YAML or JSON project file. Relative media references are
// resolved against the file's directory.
func Load(path string, defaults RenderConfig) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	var f File
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	f.resolvePaths(filepath.Dir(path))
	return f.Build(defaults)
}

// Parse decodes a YAML document. JSON is valid YAML and is accepted as well.
func Parse(data []byte, defaults RenderConfig) (*Project, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	return f.Build(defaults)
}

func (f *File) resolvePaths(base string) {
	abs := func(ref string) string {
		if ref == "" || isRemote(ref) || filepath.IsAbs(ref) {
			return ref
		}
		return filepath.Join(base, ref)
	}
	for i := range f.Slides {
		f.Slides[i].Source = abs(f.Slides[i].Source)
	}
	for i := range f.Tracks {
		t := &f.Tracks[i]
		t.Audio = abs(t.Audio)
		t.Cover = abs(t.Cover)
		for j := range t.Slides {
			t.Slides[j].Source = abs(t.Slides[j].Source)
		}
	}
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Build validates the file and maps it onto the engine's model. Render
// settings left unset fall back to defaults.
func (f *File) Build(defaults RenderConfig) (*Project, error) {
	if len(f.Tracks) == 0 {
		return nil, ErrEmptyQueue
	}
	rc, err := f.Render.apply(defaults)
	if err != nil {
		return nil, err
	}

	shared, err := buildSlides(f.Slides)
	if err != nil {
		return nil, fmt.Errorf("project slides: %w", err)
	}

	p := &Project{Title: strings.TrimSpace(f.Title), Render: rc}
	seen := make(map[string]bool)
	for _, s := range shared {
		seen[s.ID] = true
	}
	for i, tf := range f.Tracks {
		if strings.TrimSpace(tf.Audio) == "" {
			return nil, fmt.Errorf("track %d: audio source is required", i)
		}
		if tf.Duration < 0 {
			return nil, fmt.Errorf("track %d: negative duration %v", i, tf.Duration)
		}
		own, err := buildSlides(tf.Slides)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		trackSeen := make(map[string]bool, len(seen))
		for id := range seen {
			trackSeen[id] = true
		}
		for _, s := range own {
			if trackSeen[s.ID] {
				return nil, fmt.Errorf("track %d: duplicate slide id %q", i, s.ID)
			}
			trackSeen[s.ID] = true
		}

		caps := make(timeline.Captions, len(tf.Captions))
		for j, c := range tf.Captions {
			caps[j] = timeline.Caption{Time: c.Time, End: c.End, Text: c.Text}
		}
		if err := caps.Validate(); err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}

		slides := make([]timeline.Slide, 0, len(shared)+len(own))
		slides = append(slides, shared...)
		slides = append(slides, own...)

		p.Tracks = append(p.Tracks, Track{
			Title:    strings.TrimSpace(tf.Title),
			Artist:   strings.TrimSpace(tf.Artist),
			Cover:    tf.Cover,
			Audio:    tf.Audio,
			Duration: tf.Duration,
			Captions: caps,
			Slides:   slides,
		})
	}
	return p, nil
}

func buildSlides(in []SlideFile) ([]timeline.Slide, error) {
	out := make([]timeline.Slide, 0, len(in))
	ids := make(map[string]bool, len(in))
	for i, sf := range in {
		kind, err := timeline.ParseKind(strings.ToLower(sf.Kind))
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", i, err)
		}
		if sf.Start < 0 || sf.Start >= sf.End {
			return nil, fmt.Errorf("slide %d: time range [%v,%v) is empty", i, sf.Start, sf.End)
		}
		if sf.Source == "" {
			return nil, fmt.Errorf("slide %d: source is required", i)
		}
		vol := 1.0
		if sf.Volume != nil {
			vol = *sf.Volume
			if vol < 0 || vol > 1 {
				return nil, fmt.Errorf("slide %d: volume %v out of range [0,1]", i, vol)
			}
		}
		id := sf.ID
		if id == "" {
			id = uuid.New().String()
		}
		if ids[id] {
			return nil, fmt.Errorf("duplicate slide id %q", id)
		}
		ids[id] = true
		out = append(out, timeline.Slide{
			ID:     id,
			Kind:   kind,
			Window: timeline.Window{Start: sf.Start, End: sf.End},
			Source: sf.Source,
			Muted:  sf.Muted,
			Volume: vol,
		})
	}
	return out, nil
}

func (r RenderFile) apply(d RenderConfig) (RenderConfig, error) {
	c := d
	if r.Resolution != 0 {
		c.Resolution = r.Resolution
	}
	if r.AspectRatio != "" {
		c.AspectRatio = r.AspectRatio
	}
	if r.FrameRate != 0 {
		c.FrameRate = r.FrameRate
	}
	if r.Codec != "" {
		c.Codec = strings.ToLower(r.Codec)
	}
	if r.Quality != "" {
		c.Quality = strings.ToLower(r.Quality)
	}
	if r.Display != "" {
		m, err := timeline.ParseDisplayMode(strings.ToLower(r.Display))
		if err != nil {
			return c, err
		}
		c.Display = m
	}
	if r.Animation != "" {
		c.Animation = Animation(strings.ToLower(r.Animation))
	}
	if r.Align != "" {
		c.Align = Align(strings.ToLower(r.Align))
	}
	if r.FontSize != 0 {
		c.FontSize = r.FontSize
	}
	if r.Bold != nil {
		c.Bold = *r.Bold
	}
	if r.TextColor != "" {
		c.TextColor = r.TextColor
	}
	if r.HighlightColor != "" {
		c.HighlightColor = r.HighlightColor
	}
	if bg := r.Background; bg != nil {
		if bg.Slides != nil {
			c.Background.Slides = *bg.Slides
		}
		if bg.Color != "" {
			c.Background.Color = bg.Color
		}
		if len(bg.Gradient) > 0 {
			c.Background.Gradient = append([]string(nil), bg.Gradient...)
		}
		if bg.Cover != nil {
			c.Background.Cover = *bg.Cover
		}
	}
	if m := r.Metadata; m != nil {
		if m.Cover != nil {
			c.Metadata.Cover = *m.Cover
		}
		if m.Title != nil {
			c.Metadata.Title = *m.Title
		}
		if m.Artist != nil {
			c.Metadata.Artist = *m.Artist
		}
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("render settings: %w", err)
	}
	return c, nil
}
