package engine

import (
	"time"

	"github.com/daryltucker/vlm-bench/internal/backend"
	"github.com/daryltucker/vlm-bench/internal/backend/llavacli"
	"github.com/daryltucker/vlm-bench/internal/backend/ollama"
	"github.com/daryltucker/vlm-bench/internal/backend/stub"
	"github.com/daryltucker/vlm-bench/internal/config"
)

// NewRegistry registers every built-in backend configured from cfg.
func NewRegistry(cfg *config.Config) *backend.Registry {
	r := backend.NewRegistry()
	r.Register(ollama.Name, NewOllamaClient(cfg))
	r.Register(llavacli.Name, llavacli.New(llavacli.Options{
		Binary:      cfg.LlavaCLI.Binary,
		ModelFile:   cfg.LlavaCLI.ModelFile,
		MMProjFile:  cfg.LlavaCLI.MMProjFile,
		GPULayers:   cfg.LlavaCLI.GPULayers,
		Temperature: cfg.LlavaCLI.Temperature,
		MaxEdge:     cfg.MaxImageSize,
	}))
	r.Register(stub.Name, stub.New(stub.Options{
		LoadDelay:       time.Duration(cfg.Stub.LoadDelay),
		PreprocessDelay: time.Duration(cfg.Stub.PreprocessDelay),
		GenerateDelay:   time.Duration(cfg.Stub.GenerateDelay),
		Response:        cfg.Stub.Response,
		MaxEdge:         cfg.MaxImageSize,
	}))
	return r
}

// NewOllamaClient builds the ollama backend from cfg.
func NewOllamaClient(cfg *config.Config) *ollama.Client {
	return ollama.New(ollama.Options{
		URL:            cfg.Ollama.URL,
		Models:         cfg.Ollama.Models,
		KeepAlive:      cfg.Ollama.KeepAlive,
		RequestTimeout: time.Duration(cfg.Ollama.RequestTimeout),
		ModelOptions:   cfg.Ollama.Options,
		MaxEdge:        cfg.MaxImageSize,
	})
}
