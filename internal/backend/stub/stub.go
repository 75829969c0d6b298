// Package stub is an in-process backend that decodes images for real but
// answers with a canned description. It exercises the whole pipeline on
// machines without model weights.
package stub

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/daryltucker/vlm-bench/internal/backend"
	"github.com/daryltucker/vlm-bench/internal/model"
	"github.com/daryltucker/vlm-bench/internal/vision"
)

// Name is the registry identifier.
const Name = "stub"

// Options tunes the simulated phase costs.
type Options struct {
	LoadDelay       time.Duration
	PreprocessDelay time.Duration
	GenerateDelay   time.Duration
	// Response is the canned answer. The placeholders {variant}, {device},
	// {width}, {height} and {prompt} are substituted; other text is literal.
	Response string
	MaxEdge  int
}

// DefaultResponse is used when Options.Response is empty.
const DefaultResponse = "[{variant} on {device}] a {width}x{height} image. You asked: {prompt}"

// Backend implements backend.Backend.
type Backend struct {
	opts Options
}

// New creates a stub backend.
func New(opts Options) *Backend {
	if opts.Response == "" {
		opts.Response = DefaultResponse
	}
	return &Backend{opts: opts}
}

// Load simulates model loading. An empty variant is rejected.
func (b *Backend) Load(ctx context.Context, variant string, device model.Device, modelDir string) (backend.Instance, error) {
	if strings.TrimSpace(variant) == "" {
		return nil, fmt.Errorf("empty model variant")
	}
	if err := sleep(ctx, b.opts.LoadDelay); err != nil {
		return nil, err
	}
	return &instance{opts: b.opts, variant: variant, device: device}, nil
}

type instance struct {
	opts    Options
	variant string
	device  model.Device
	closed  bool
}

func (i *instance) Preprocess(ctx context.Context, imagePath string) (backend.Input, error) {
	if i.closed {
		return nil, fmt.Errorf("instance closed")
	}
	img, err := vision.Load(imagePath, i.opts.MaxEdge)
	if err != nil {
		return nil, err
	}
	if err := sleep(ctx, i.opts.PreprocessDelay); err != nil {
		return nil, err
	}
	return img, nil
}

func (i *instance) Generate(ctx context.Context, input backend.Input, prompt string) (string, error) {
	img, ok := input.(*vision.Image)
	if !ok {
		return "", fmt.Errorf("unexpected input type %T", input)
	}
	if err := sleep(ctx, i.opts.GenerateDelay); err != nil {
		return "", err
	}
	r := strings.NewReplacer(
		"{variant}", i.variant,
		"{device}", i.device.String(),
		"{width}", strconv.Itoa(img.Width),
		"{height}", strconv.Itoa(img.Height),
		"{prompt}", prompt,
	)
	return r.Replace(i.opts.Response), nil
}

func (i *instance) Close() error {
	i.closed = true
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
