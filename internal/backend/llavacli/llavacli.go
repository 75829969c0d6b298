// Package llavacli runs a llava.cpp style command line binary as a backend.
//
// Model files are expected under <model_dir>/<variant>/. Every generate call
// starts the binary, so "load" only resolves and validates paths; the real
// load cost is paid inside Generate and reported there.
package llavacli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/daryltucker/vlm-bench/internal/backend"
	"github.com/daryltucker/vlm-bench/internal/model"
	"github.com/daryltucker/vlm-bench/internal/vision"
)

// Name is the registry identifier.
const Name = "llava-cli"

// AllLayers is the -ngl value that offloads every layer of a small model.
const AllLayers = 99

// Options configures the binary invocation.
type Options struct {
	Binary     string
	ModelFile  string
	MMProjFile string
	// GPULayers is passed as -ngl on the accelerator. Zero keeps every layer
	// on the CPU; a negative value means AllLayers.
	GPULayers int
	// Temperature is passed as --temp as given, zero included.
	Temperature float64
	MaxEdge     int
}

// Backend implements backend.Backend.
type Backend struct {
	opts Options
}

// New creates a llava-cli backend with defaults filled in.
func New(opts Options) *Backend {
	if opts.Binary == "" {
		opts.Binary = "llama-llava-cli"
	}
	if opts.ModelFile == "" {
		opts.ModelFile = "model.gguf"
	}
	if opts.MMProjFile == "" {
		opts.MMProjFile = "mmproj.gguf"
	}
	if opts.GPULayers < 0 {
		opts.GPULayers = AllLayers
	}
	return &Backend{opts: opts}
}

// Load resolves the binary and the model files for variant.
func (b *Backend) Load(ctx context.Context, variant string, device model.Device, modelDir string) (backend.Instance, error) {
	bin, err := exec.LookPath(b.opts.Binary)
	if err != nil {
		return nil, fmt.Errorf("llava binary: %w", err)
	}

	dir := filepath.Join(modelDir, variant)
	modelPath := filepath.Join(dir, b.opts.ModelFile)
	projPath := filepath.Join(dir, b.opts.MMProjFile)
	for _, p := range []string{modelPath, projPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("model file: %w", err)
		}
	}

	layers := b.opts.GPULayers
	if device == model.DeviceCPU {
		layers = 0
	}

	return &instance{
		opts:   b.opts,
		bin:    bin,
		model:  modelPath,
		mmproj: projPath,
		layers: layers,
	}, nil
}

type instance struct {
	opts   Options
	bin    string
	model  string
	mmproj string
	layers int
	// temp files created by Preprocess, removed on Close
	temps []string
}

// imageFile is the preprocessed input: a normalized PNG on disk.
type imageFile string

func (i *instance) Preprocess(ctx context.Context, imagePath string) (backend.Input, error) {
	img, err := vision.Load(imagePath, i.opts.MaxEdge)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "vlm-bench-*.png")
	if err != nil {
		return nil, err
	}
	i.temps = append(i.temps, f.Name())

	if _, err := f.Write(img.PNG); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return imageFile(f.Name()), nil
}

func (i *instance) Generate(ctx context.Context, input backend.Input, prompt string) (string, error) {
	path, ok := input.(imageFile)
	if !ok {
		return "", fmt.Errorf("unexpected input type %T", input)
	}

	cmd := exec.CommandContext(ctx, i.bin,
		"-m", i.model,
		"--mmproj", i.mmproj,
		"--image", string(path),
		"--temp", strconv.FormatFloat(i.opts.Temperature, 'f', -1, 64),
		"-ngl", strconv.Itoa(i.layers),
		"-p", prompt,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", err, lastLine(msg))
	}
	return cleanOutput(stdout.String()), nil
}

func (i *instance) Close() error {
	var errs []error
	for _, p := range i.temps {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	i.temps = nil
	return errors.Join(errs...)
}

// cleanOutput drops the image-encoding banner llava.cpp prints before the answer.
func cleanOutput(out string) string {
	const anchor = "per image patch)"
	if idx := strings.Index(out, anchor); idx != -1 {
		out = out[idx+len(anchor):]
	}
	return strings.TrimSpace(out)
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx != -1 {
		return s[idx+1:]
	}
	return s
}
