// Package registry maps provider names to constructors and runs cross-provider comparisons.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"grocery-cli/adapters"
	"grocery-cli/internal/types"
)

// Constructor builds a provider from the shared dependencies
type Constructor func(deps adapters.Deps) (types.Provider, error)

// Registry resolves providers by exact name
type Registry struct {
	deps adapters.Deps

	mu           sync.RWMutex
	constructors map[string]Constructor
}

// New creates a registry with every built-in provider registered
func New(deps adapters.Deps) *Registry {
	r := &Registry{
		deps:         deps,
		constructors: make(map[string]Constructor),
	}
	r.Register("sainsburys", func(deps adapters.Deps) (types.Provider, error) {
		return adapters.NewSainsburysAdapter(deps), nil
	})
	r.Register("ocado", func(deps adapters.Deps) (types.Provider, error) {
		return adapters.NewOcadoAdapter(deps), nil
	})
	return r
}

// Register adds or replaces a provider constructor
func (r *Registry) Register(name string, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = constructor
}

// Create builds the named provider. Unknown names fail with the list of valid ones.
func (r *Registry) Create(name string) (types.Provider, error) {
	r.mu.RLock()
	constructor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &types.UnknownProviderError{Name: name, Available: r.AvailableProviders()}
	}

	provider, err := constructor(r.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
	}
	return provider, nil
}

// AvailableProviders returns every registered name, sorted
func (r *Registry) AvailableProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompareProduct searches every named provider (all when names is empty) concurrently.
// A provider's failure is recorded on its own entry; the result always has one
// entry per requested provider, in request order.
func (r *Registry) CompareProduct(ctx context.Context, query string, names []string, limit int) []types.ProviderResult {
	if len(names) == 0 {
		names = r.AvailableProviders()
	}

	results := make([]types.ProviderResult, len(names))

	var g errgroup.Group
	if r.deps.Config != nil && r.deps.Config.MaxConcurrentRequests > 0 {
		g.SetLimit(r.deps.Config.MaxConcurrentRequests)
	}

	for i, name := range names {
		i, name := i, name // per-iteration copies (go 1.21 loop semantics)
		g.Go(func() error {
			products, err := r.search(ctx, name, query, limit)
			result := types.ProviderResult{Provider: name, Products: products}
			if err != nil {
				msg := err.Error()
				result.Error = &msg
				result.Products = []types.Product{}
				r.deps.Logger.Warnf("[%s] Compare search failed: %v", name, err)
			}
			results[i] = result
			// errors are reported per entry, never to the group
			return nil
		})
	}
	g.Wait()

	return results
}

func (r *Registry) search(ctx context.Context, name, query string, limit int) ([]types.Product, error) {
	provider, err := r.Create(name)
	if err != nil {
		return nil, err
	}
	defer provider.Close()

	products, err := provider.Search(ctx, query, types.SearchOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []types.Product{}
	}
	return products, nil
}
