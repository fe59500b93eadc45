package encode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Artifact is one finished export.
type Artifact struct {
	Name     string
	MIME     string
	Codec    string
	Width    int
	Height   int
	Duration float64 // seconds of encoded media
	Data     []byte
}

// Size returns the artifact size in bytes.
func (a *Artifact) Size() int { return len(a.Data) }

// Save writes the artifact into dir under its own name and returns the path.
// An existing file of the same name is replaced.
func (a *Artifact) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(a.Name))
	tmp := path + ".part"
	if err := os.WriteFile(tmp, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug lowercases s, strips accents and joins the remaining letters and
// digits with dashes.
func Slug(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// FileName names an artifact from its title, aspect ratio and dimensions,
// e.g. "my-song_16x9_1920x1080.mp4".
func FileName(title, aspect string, w, h int, ext string) string {
	slug := Slug(title)
	if slug == "" {
		slug = "untitled"
	}
	aspect = strings.ReplaceAll(aspect, ":", "x")
	return fmt.Sprintf("%s_%s_%dx%d.%s", slug, aspect, w, h, ext)
}
