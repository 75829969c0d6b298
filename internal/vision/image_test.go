package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "in.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{100, 50, 200, 100, 50},
		{400, 200, 200, 200, 100},
		{200, 400, 200, 100, 200},
		{1000, 1, 100, 100, 1},
		{640, 480, 0, 640, 480},
	}
	for _, tc := range tests {
		w, h := FitWithin(tc.w, tc.h, tc.max)
		assert.Equal(t, tc.wantW, w, "%dx%d max %d", tc.w, tc.h, tc.max)
		assert.Equal(t, tc.wantH, h, "%dx%d max %d", tc.w, tc.h, tc.max)
	}
}

func TestLoad(t *testing.T) {
	path := writePNG(t, 64, 32)

	img, err := Load(path, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Width)
	assert.Equal(t, 8, img.Height)
	assert.Equal(t, "png", img.Format)

	decoded, err := png.Decode(bytes.NewReader(img.PNG))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), decoded.Bounds())
}

func TestLoadKeepsSmallImages(t *testing.T) {
	img, err := Load(writePNG(t, 10, 12), DefaultMaxEdge)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Width)
	assert.Equal(t, 12, img.Height)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"), 0)
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("definitely not an image"), 0644))
	_, err = Load(bad, 0)
	assert.ErrorContains(t, err, "decode image")
}
