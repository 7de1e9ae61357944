// Package source defines the search-provider contract consumed by the
// verification orchestrator, plus the plumbing around concrete providers:
// a registry, a fixture-backed provider and rate-limit, retry, circuit-breaker
// and cache decorators.
package source

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/model"
)

// Provider searches one bibliographic database for candidates matching a
// reference.
type Provider interface {
	// Name is the source tag, matching the name in the priority list.
	Name() string
	// Search returns zero or more candidates for ref.
	Search(ctx context.Context, ref model.Reference) ([]model.Candidate, error)
}

// Func adapts a function to Provider.
type Func struct {
	SourceName string
	SearchFunc func(ctx context.Context, ref model.Reference) ([]model.Candidate, error)
}

func (f Func) Name() string { return f.SourceName }

func (f Func) Search(ctx context.Context, ref model.Reference) ([]model.Candidate, error) {
	return f.SearchFunc(ctx, ref)
}

// Registry holds the available providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p, replacing any provider with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ordered returns the providers named in priority, in that order. Unknown
// and duplicate names are skipped with a warning. An empty priority list
// yields every provider in name order.
func (r *Registry) Ordered(priority []string) []Provider {
	if len(priority) == 0 {
		priority = r.Names()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(priority))
	seen := make(map[string]bool, len(priority))
	for _, name := range priority {
		if seen[name] {
			continue
		}
		seen[name] = true
		p, ok := r.providers[name]
		if !ok {
			zap.L().Warn("source: unknown source in priority list", zap.String("source", name))
			continue
		}
		out = append(out, p)
	}
	return out
}
