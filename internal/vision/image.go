// Package vision loads images for the vision-language backends. It decodes
// the common formats, scales large images down to a maximum edge and
// re-encodes them as PNG, the representation every backend accepts.
package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxEdge bounds the longer side of a preprocessed image.
const DefaultMaxEdge = 1536

// ErrEmptyImage is returned for zero-sized input.
var ErrEmptyImage = errors.New("empty image")

// Image is a decoded and normalized input image.
type Image struct {
	Width  int
	Height int
	// Format is the source format reported by the decoder ("png", "jpeg", ...).
	Format string
	// PNG holds the normalized image.
	PNG []byte
}

// Load reads, decodes and normalizes the image at path.
func Load(path string, maxEdge int) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	return Decode(f, maxEdge)
}

// Decode normalizes an image read from r. maxEdge <= 0 disables scaling.
func Decode(r io.Reader, maxEdge int) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrEmptyImage
	}

	w, h := FitWithin(b.Dx(), b.Dy(), maxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	return &Image{
		Width:  w,
		Height: h,
		Format: format,
		PNG:    buf.Bytes(),
	}, nil
}

// FitWithin scales (w, h) so the longer edge is at most maxEdge, keeping the
// aspect ratio. Images that already fit are returned unchanged.
func FitWithin(w, h, maxEdge int) (int, int) {
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return w, h
	}
	if w >= h {
		return maxEdge, max(1, h*maxEdge/w)
	}
	return max(1, w*maxEdge/h), maxEdge
}
