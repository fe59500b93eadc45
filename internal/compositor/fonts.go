package compositor

import (
	"fmt"
	"math"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

type faceKey struct {
	bold bool
	size int // tenths of a pixel
}

// fonts caches faces per weight and size so frames reuse them.
type fonts struct {
	regular *text.FontSource
	bold    *text.FontSource
	faces   map[faceKey]text.Face
}

func loadFonts() (*fonts, error) {
	regular, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("load regular font: %w", err)
	}
	bold, err := text.NewFontSource(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("load bold font: %w", err)
	}
	return &fonts{regular: regular, bold: bold, faces: make(map[faceKey]text.Face)}, nil
}

func (f *fonts) face(size float64, bold bool) text.Face {
	k := faceKey{bold: bold, size: int(math.Round(size * 10))}
	if face, ok := f.faces[k]; ok {
		return face
	}
	src := f.regular
	if bold {
		src = f.bold
	}
	face := src.Face(float64(k.size) / 10)
	f.faces[k] = face
	return face
}
