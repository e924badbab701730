// Package processor provides the cognitive processor implementations the
// kernel dispatches to: an external command speaking JSON lines, and a
// built-in echo processor for running without one.
package processor

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// ProviderSpec describes an external processor's command and environment.
type ProviderSpec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// ProviderRegistry is a thread-safe registry of provider specifications.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderSpec
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderSpec),
	}
}

// Register adds a provider spec to the registry.
// Returns ErrProviderUnavailable if the name is taken or the command is empty.
func (r *ProviderRegistry) Register(spec ProviderSpec) error {
	if spec.Name == "" || spec.Command == "" {
		return domain.NewEngineError(domain.ErrProviderUnavailable.Code, "provider name and command are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[spec.Name]; exists {
		return domain.NewEngineError(domain.ErrProviderUnavailable.Code, "provider already registered: "+spec.Name)
	}
	r.providers[spec.Name] = spec
	return nil
}

// Get returns the spec for the named provider, or ErrProviderUnavailable if not found.
func (r *ProviderRegistry) Get(name string) (ProviderSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.providers[name]
	if !ok {
		return ProviderSpec{}, domain.ErrProviderUnavailable
	}
	return spec, nil
}

// Open returns a CommandProcessor for the named provider.
func (r *ProviderRegistry) Open(name string, logger *slog.Logger) (*CommandProcessor, error) {
	spec, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return NewCommandProcessor(spec, logger), nil
}

// List returns all registered provider names in sorted order.
func (r *ProviderRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
