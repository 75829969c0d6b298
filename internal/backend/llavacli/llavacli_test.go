package llavacli

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/vlm-bench/internal/model"
)

// fakeBinary writes a shell script that echoes its arguments after a
// llava-style banner.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script binary")
	}
	path := filepath.Join(t.TempDir(), "fake-llava")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func modelDir(t *testing.T, variant string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, variant), 0755))
	for _, name := range []string{"model.gguf", "mmproj.gguf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, variant, name), []byte("gguf"), 0644))
	}
	return dir
}

func testImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 6, 6))))
	require.NoError(t, f.Close())
	return path
}

func TestPipeline(t *testing.T) {
	bin := fakeBinary(t, `echo "encoded image in 12 ms (576 tokens per image patch)"; echo "$@"`)
	b := New(Options{Binary: bin})
	ctx := context.Background()

	inst, err := b.Load(ctx, "small", model.DeviceCPU, modelDir(t, "small"))
	require.NoError(t, err)

	in, err := inst.Preprocess(ctx, testImage(t))
	require.NoError(t, err)
	tmp := string(in.(imageFile))
	assert.FileExists(t, tmp)

	out, err := inst.Generate(ctx, in, "what is it")
	require.NoError(t, err)
	assert.False(t, strings.Contains(out, "per image patch"))
	assert.Contains(t, out, "-ngl 0")
	assert.Contains(t, out, "--image "+tmp)
	assert.True(t, strings.HasSuffix(out, "-p what is it"))

	require.NoError(t, inst.Close())
	assert.NoFileExists(t, tmp)
}

func TestAcceleratorLayers(t *testing.T) {
	bin := fakeBinary(t, `echo "$@"`)
	b := New(Options{Binary: bin, GPULayers: 33})
	ctx := context.Background()

	inst, err := b.Load(ctx, "small", model.DeviceAccelerator, modelDir(t, "small"))
	require.NoError(t, err)
	defer inst.Close()

	in, err := inst.Preprocess(ctx, testImage(t))
	require.NoError(t, err)
	out, err := inst.Generate(ctx, in, "x")
	require.NoError(t, err)
	assert.Contains(t, out, "-ngl 33")
}

func TestAcceleratorLayerSettings(t *testing.T) {
	bin := fakeBinary(t, `echo "$@"`)
	ctx := context.Background()
	dir := modelDir(t, "small")
	img := testImage(t)

	cases := []struct {
		name string
		opts Options
		want []string
	}{
		{"zero layers stays zero", Options{Binary: bin}, []string{"-ngl 0", "--temp 0 "}},
		{"negative means all layers", Options{Binary: bin, GPULayers: -1}, []string{"-ngl 99"}},
		{"explicit temperature", Options{Binary: bin, GPULayers: 8, Temperature: 0.7}, []string{"-ngl 8", "--temp 0.7 "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst, err := New(tc.opts).Load(ctx, "small", model.DeviceAccelerator, dir)
			require.NoError(t, err)
			defer inst.Close()

			in, err := inst.Preprocess(ctx, img)
			require.NoError(t, err)
			out, err := inst.Generate(ctx, in, "x")
			require.NoError(t, err)
			for _, want := range tc.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(Options{Binary: "definitely-not-a-llava-binary"}).Load(ctx, "small", model.DeviceCPU, t.TempDir())
	assert.ErrorContains(t, err, "llava binary")

	bin := fakeBinary(t, "true")
	_, err = New(Options{Binary: bin}).Load(ctx, "large", model.DeviceCPU, modelDir(t, "small"))
	assert.ErrorContains(t, err, "model file")
}

func TestGenerateFailureIncludesStderr(t *testing.T) {
	bin := fakeBinary(t, `echo "loading..." >&2; echo "error: failed to load mmproj" >&2; exit 3`)
	b := New(Options{Binary: bin})
	ctx := context.Background()

	inst, err := b.Load(ctx, "small", model.DeviceCPU, modelDir(t, "small"))
	require.NoError(t, err)
	defer inst.Close()

	in, err := inst.Preprocess(ctx, testImage(t))
	require.NoError(t, err)
	_, err = inst.Generate(ctx, in, "x")
	assert.ErrorContains(t, err, "failed to load mmproj")
}

func TestCleanOutput(t *testing.T) {
	assert.Equal(t, "A cat.", cleanOutput("clip: 1 ms (576 tokens per image patch)\n\n A cat. \n"))
	assert.Equal(t, "plain", cleanOutput(" plain\n"))
}
