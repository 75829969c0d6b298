/*
PURPOSE:
  Backend adapter for vision models served by Ollama.
  Handles model discovery, warm loading, placement checks, image
  submission and unloading over the Ollama HTTP API.

REQUIREMENTS:
  User-specified:
  - Load = bring the model into memory on the requested device.
  - Generate = one non-streaming completion with the image attached.
  - Release accelerator memory after every attempt.

  Implementation-discovered:
  - Ollama has no explicit "load" endpoint; a prompt-less /api/generate with
    keep_alive loads the model and returns once it is resident.
  - CPU placement is forced with options.num_gpu = 0 on every request,
    otherwise a later request may reload the model onto the GPU.
  - /api/ps reports size and size_vram; use it to verify the placement.
  - No retries: a benchmark attempt is measured exactly once.

ARCHITECTURE INTEGRATION:
  - Registered by: internal/engine (registry setup)
  - Called by: internal/engine (driver), internal/cli (list-models)
  - Uses: internal/vision, internal/model

ERROR HANDLING:
  - Header timeouts are reported as model-loading timeouts.
  - Non-200 responses and API-side "error" fields become errors with the body.

USAGE:
  c := ollama.New(ollama.Options{URL: "http://localhost:11434"})
  inst, err := c.Load(ctx, "small", model.DeviceCPU, "")

RELATED FILES:
  - internal/backend/backend.go
  - internal/vision/image.go
*/

package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daryltucker/vlm-bench/internal/backend"
	"github.com/daryltucker/vlm-bench/internal/model"
	"github.com/daryltucker/vlm-bench/internal/output"
	"github.com/daryltucker/vlm-bench/internal/vision"
)

// Name is the registry identifier.
const Name = "ollama"

// Options configures the client.
type Options struct {
	URL string
	// Models maps a variant to an Ollama model tag. Unmapped variants are used as tags.
	Models         map[string]string
	KeepAlive      string
	RequestTimeout time.Duration
	// Extra model options sent with every generate request (temperature, num_ctx, ...).
	ModelOptions map[string]interface{}
	MaxEdge      int
}

// Client talks to one Ollama server.
type Client struct {
	opts   Options
	Client *http.Client
}

// New creates a new Client.
func New(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = "http://localhost:11434"
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	if opts.KeepAlive == "" {
		opts.KeepAlive = "5m"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// ResponseHeaderTimeout covers the time until the first response byte.
	// This is where model loading happens.
	transport.ResponseHeaderTimeout = opts.RequestTimeout

	return &Client{
		opts: opts,
		Client: &http.Client{
			Transport: transport,
			Timeout:   opts.RequestTimeout,
		},
	}
}

// Tag returns the Ollama model tag for a variant.
func (c *Client) Tag(variant string) string {
	if tag, ok := c.opts.Models[variant]; ok && tag != "" {
		return tag
	}
	return variant
}

// GetModels returns the models available on the server.
func (c *Client) GetModels(ctx context.Context) ([]string, error) {
	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.get(ctx, "/api/tags", &payload); err != nil {
		return nil, err
	}

	var names []string
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// GetRunningModelInfo returns total and VRAM bytes for a loaded model from /api/ps.
// Both are zero when the model is not loaded. A bare name also matches its
// ":latest" tag; other tags must match exactly.
func (c *Client) GetRunningModelInfo(ctx context.Context, modelName string) (int64, int64, error) {
	var payload struct {
		Models []struct {
			Name     string `json:"name"`
			Size     int64  `json:"size"`
			SizeVRAM int64  `json:"size_vram"`
		} `json:"models"`
	}
	if err := c.get(ctx, "/api/ps", &payload); err != nil {
		return 0, 0, err
	}

	for _, m := range payload.Models {
		if m.Name == modelName || m.Name == modelName+":latest" {
			return m.Size, m.SizeVRAM, nil
		}
	}
	return 0, 0, nil
}

// Load warms the model for variant and checks it landed on the requested device.
// modelDir is unused: Ollama manages its own model store.
func (c *Client) Load(ctx context.Context, variant string, device model.Device, modelDir string) (backend.Instance, error) {
	inst := &instance{c: c, tag: c.Tag(variant), device: device}

	if _, err := c.generate(ctx, inst.request("", nil)); err != nil {
		return nil, err
	}

	size, vram, err := c.GetRunningModelInfo(ctx, inst.tag)
	if err != nil {
		// Placement is advisory; the model did load.
		return inst, nil
	}
	switch {
	case size == 0:
		// Not listed (older server or already evicted); nothing to check.
	case device == model.DeviceAccelerator && vram == 0:
		inst.release()
		return nil, fmt.Errorf("model %s loaded 100%% on CPU, accelerator requested", inst.tag)
	case device == model.DeviceCPU && vram > 0:
		inst.release()
		return nil, fmt.Errorf("model %s placed %d bytes in VRAM, CPU requested", inst.tag, vram)
	}
	return inst, nil
}

type generateRequest struct {
	Model     string                 `json:"model"`
	Prompt    string                 `json:"prompt,omitempty"`
	Images    []string               `json:"images,omitempty"`
	Stream    bool                   `json:"stream"`
	KeepAlive interface{}            `json:"keep_alive"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

type instance struct {
	c      *Client
	tag    string
	device model.Device
}

// encodedImage is the preprocessed input: a base64 PNG.
type encodedImage struct {
	data string
}

func (i *instance) request(prompt string, images []string) generateRequest {
	opts := make(map[string]interface{}, len(i.c.opts.ModelOptions)+1)
	for k, v := range i.c.opts.ModelOptions {
		opts[k] = v
	}
	if i.device == model.DeviceCPU {
		opts["num_gpu"] = 0
	}
	return generateRequest{
		Model:     i.tag,
		Prompt:    prompt,
		Images:    images,
		KeepAlive: i.c.opts.KeepAlive,
		Options:   opts,
	}
}

func (i *instance) Preprocess(ctx context.Context, imagePath string) (backend.Input, error) {
	img, err := vision.Load(imagePath, i.c.opts.MaxEdge)
	if err != nil {
		return nil, err
	}
	return encodedImage{data: base64.StdEncoding.EncodeToString(img.PNG)}, nil
}

func (i *instance) Generate(ctx context.Context, input backend.Input, prompt string) (string, error) {
	img, ok := input.(encodedImage)
	if !ok {
		return "", fmt.Errorf("unexpected input type %T", input)
	}
	resp, err := i.c.generate(ctx, i.request(prompt, []string{img.data}))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Response), nil
}

// Close unloads the model (keep_alive 0), freeing VRAM.
func (i *instance) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := i.c.generate(ctx, generateRequest{Model: i.tag, KeepAlive: 0})
	return err
}

// release unloads a model that failed its placement check. The placement
// error is what the caller reports, so an unload failure is only logged.
func (i *instance) release() {
	if err := i.Close(); err != nil {
		output.Logger.Warn("Failed to release backend", "model", i.tag, "error", err)
	}
}

func (c *Client) generate(ctx context.Context, payload generateRequest) (generateResponse, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return generateResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return generateResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		// Classify specific network errors
		if strings.Contains(err.Error(), "awaiting headers") {
			return generateResponse{}, fmt.Errorf("Ollama header timeout (model loading?): %w", err)
		}
		return generateResponse{}, fmt.Errorf("network/connection error: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return generateResponse{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return generateResponse{}, fmt.Errorf("Ollama server error (%s): %s", resp.Status, strings.TrimSpace(string(bodyBytes)))
	}

	var data generateResponse
	if err := json.Unmarshal(bodyBytes, &data); err != nil {
		return generateResponse{}, fmt.Errorf("Ollama returned invalid JSON: %w (body: %s)", err, string(bodyBytes))
	}
	if data.Error != "" {
		return generateResponse{}, fmt.Errorf("Ollama API error: %s", data.Error)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
