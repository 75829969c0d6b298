/*
PURPOSE:
  Defines the configuration structure and loading logic for vlm-bench.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Configure the benchmark matrix (backends, variants, devices), the model
    directory, the test image and the prompt.

  Implementation-discovered:
  - Needs to support YAML parsing; TOML accepted for users coming from other tools.
  - Needs to support Environment variables overrides (VLMBENCH_...).
  - Backend adapters need their own sections (ollama, llava_cli, stub).

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3, github.com/BurntSushi/toml

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default files fall back to defaults silently.

IMPLEMENTATION RULES:
  - Config struct tags support yaml and toml.
  - Durations are strings in files ("30s", "5m").

USAGE:
  cfg, err := config.Load("vlm-bench.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig().

RELATED FILES:
  - internal/cli/run.go
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/daryltucker/vlm-bench/internal/accel"
	"github.com/daryltucker/vlm-bench/internal/model"
)

// DefaultFiles are searched in order when no path is given.
var DefaultFiles = []string{"vlm-bench.yaml", "vlm-bench.yml", "vlm-bench.toml"}

// Duration is a time.Duration that reads "30s"-style strings from YAML and TOML.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the full configuration for vlm-bench.
type Config struct {
	Backends []string `yaml:"backends" toml:"backends"`
	Variants []string `yaml:"variants" toml:"variants"`
	Devices  []string `yaml:"devices" toml:"devices"`

	ModelDir  string `yaml:"model_dir" toml:"model_dir"`
	ImagePath string `yaml:"image" toml:"image"`
	Prompt    string `yaml:"prompt" toml:"prompt"`

	OutputDir  string `yaml:"output_dir" toml:"output_dir"`
	OutputFile string `yaml:"output_file" toml:"output_file"`
	// HistoryDB is the SQLite history path. Empty disables history.
	HistoryDB string `yaml:"history_db" toml:"history_db"`

	// Accelerator is auto (probe the host), on or off.
	Accelerator  string `yaml:"accelerator" toml:"accelerator"`
	MaxImageSize int    `yaml:"max_image_size" toml:"max_image_size"`

	Ollama   OllamaConfig   `yaml:"ollama" toml:"ollama"`
	LlavaCLI LlavaCLIConfig `yaml:"llava_cli" toml:"llava_cli"`
	Stub     StubConfig     `yaml:"stub" toml:"stub"`
}

// OllamaConfig configures the ollama backend.
type OllamaConfig struct {
	URL            string                 `yaml:"url" toml:"url"`
	Models         map[string]string      `yaml:"models" toml:"models"`
	KeepAlive      string                 `yaml:"keep_alive" toml:"keep_alive"`
	RequestTimeout Duration               `yaml:"request_timeout" toml:"request_timeout"`
	Options        map[string]interface{} `yaml:"options" toml:"options"`
}

// LlavaCLIConfig configures the llava-cli backend.
type LlavaCLIConfig struct {
	Binary      string  `yaml:"binary" toml:"binary"`
	ModelFile   string  `yaml:"model_file" toml:"model_file"`
	MMProjFile  string  `yaml:"mmproj_file" toml:"mmproj_file"`
	GPULayers   int     `yaml:"gpu_layers" toml:"gpu_layers"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
}

// StubConfig configures the stub backend.
type StubConfig struct {
	LoadDelay       Duration `yaml:"load_delay" toml:"load_delay"`
	PreprocessDelay Duration `yaml:"preprocess_delay" toml:"preprocess_delay"`
	GenerateDelay   Duration `yaml:"generate_delay" toml:"generate_delay"`
	Response        string   `yaml:"response" toml:"response"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backends:     []string{"ollama"},
		Variants:     []string{"small"},
		Devices:      []string{"cpu", "gpu"},
		ModelDir:     "models/smolvlm",
		Prompt:       "Describe this image.",
		OutputDir:    ".",
		OutputFile:   "benchmark_results.csv",
		HistoryDB:    defaultHistoryPath(),
		Accelerator:  string(accel.ModeAuto),
		MaxImageSize: 1536,
		Ollama: OllamaConfig{
			URL: "http://localhost:11434",
			Models: map[string]string{
				"small":  "smolvlm:256m",
				"medium": "smolvlm:500m",
				"large":  "smolvlm:2b",
			},
			KeepAlive:      "5m",
			RequestTimeout: Duration(10 * time.Minute),
		},
		LlavaCLI: LlavaCLIConfig{
			Binary:      "llama-llava-cli",
			ModelFile:   "model.gguf",
			MMProjFile:  "mmproj.gguf",
			GPULayers:   99,
			Temperature: 0.1,
		},
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vlm-bench", "history.db")
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches DefaultFiles in order.
// If no file found, returns default config.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		for _, name := range DefaultFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ApplyEnv applies VLMBENCH_* overrides using lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("VLMBENCH_MODEL_DIR"); ok && v != "" {
		c.ModelDir = v
	}
	if v, ok := lookup("VLMBENCH_IMAGE"); ok && v != "" {
		c.ImagePath = v
	}
	if v, ok := lookup("VLMBENCH_OLLAMA_URL"); ok && v != "" {
		c.Ollama.URL = v
	}
	if v, ok := lookup("VLMBENCH_ACCELERATOR"); ok && v != "" {
		c.Accelerator = v
	}
	if v, ok := lookup("VLMBENCH_HISTORY_DB"); ok {
		c.HistoryDB = v
	}
}

// Validate checks the matrix and enumerations. It is enough for planning.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Backends) == 0 {
		errs = append(errs, errors.New("no backends configured"))
	}
	if len(c.Variants) == 0 {
		errs = append(errs, errors.New("no variants configured"))
	}
	if len(c.Devices) == 0 {
		errs = append(errs, errors.New("no devices configured"))
	}
	if _, err := model.ParseDevices(c.Devices); err != nil {
		errs = append(errs, err)
	}
	if _, err := accel.ParseMode(c.Accelerator); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateRun is Validate plus the inputs only a real run needs.
func (c *Config) ValidateRun() error {
	err := c.Validate()
	if c.ImagePath == "" {
		err = errors.Join(err, errors.New("no image configured"))
	}
	return err
}

// DeviceList returns the parsed devices. Call Validate first.
func (c *Config) DeviceList() []model.Device {
	devices, _ := model.ParseDevices(c.Devices)
	return devices
}
