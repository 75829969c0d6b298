/*
PURPOSE:
  The capability set every inference backend implements, and the registry
  the driver resolves backend identifiers through.

REQUIREMENTS:
  User-specified:
  - load(variant, device, model_dir), preprocess(image), generate(input, prompt).
  - The driver never inspects backend identity except for report labels.

  Implementation-discovered:
  - A loaded instance may hold accelerator memory; it must be released
    (Close) after every attempt, success or failure.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Implemented by: internal/backend/ollama, internal/backend/llavacli, internal/backend/stub

ERROR HANDLING:
  - Lookup of an unknown identifier returns ErrUnknownBackend; the driver
    records it as a load failure for that configuration.

RELATED FILES:
  - internal/engine/driver.go
*/

package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/daryltucker/vlm-bench/internal/model"
)

// ErrUnknownBackend is returned by Registry.Lookup for unregistered identifiers.
var ErrUnknownBackend = errors.New("unknown backend")

// Input is a backend specific preprocessed image. Only the instance that
// produced it knows its concrete type.
type Input any

// Backend loads model instances.
type Backend interface {
	Load(ctx context.Context, variant string, device model.Device, modelDir string) (Instance, error)
}

// Instance is a loaded model owned by exactly one benchmark attempt.
type Instance interface {
	Preprocess(ctx context.Context, imagePath string) (Input, error)
	Generate(ctx context.Context, input Input, prompt string) (string, error)
	// Close releases the model and any accelerator memory it holds.
	Close() error
}

// Lookup resolves a backend identifier.
type Lookup interface {
	Lookup(name string) (Backend, error)
}

// Registry maps backend identifiers to implementations. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds b under name, replacing any previous registration.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
}

// Lookup returns the backend registered under name.
func (r *Registry) Lookup(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownBackend, name, r.namesLocked())
	}
	return b, nil
}

// Names lists registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
