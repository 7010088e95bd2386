package tools

import (
	"context"
	"fmt"
	"log/slog"
)

// Registry holds the active capability providers for a session and resolves
// tool names to the provider that declared them. After Init the registry is
// read-only, so no locking is needed.
type Registry struct {
	providers []Provider
	byTool    map[string]Provider
	defs      []Definition
	logger    *slog.Logger
}

// NewRegistry creates a registry over the given providers. Registration
// order matters: when two providers declare the same tool name, the first
// registered provider wins.
func NewRegistry(logger *slog.Logger, providers ...Provider) *Registry {
	return &Registry{
		providers: providers,
		logger:    logger,
	}
}

// Init initializes every provider and builds the tool-name index.
// It must be called once before Resolve or Definitions.
func (r *Registry) Init(ctx context.Context) error {
	r.byTool = make(map[string]Provider)
	r.defs = r.defs[:0]

	for _, p := range r.providers {
		if err := p.Init(ctx); err != nil {
			return fmt.Errorf("initializing provider %s: %w", p.Name(), err)
		}

		for _, def := range p.Definitions() {
			if prev, exists := r.byTool[def.Name]; exists {
				r.logger.Warn("duplicate tool name, keeping first registration",
					"tool", def.Name,
					"kept", prev.Name(),
					"ignored", p.Name())
				continue
			}
			r.byTool[def.Name] = p
			r.defs = append(r.defs, def)
		}
	}

	r.logger.Info("registry initialized", "providers", len(r.providers), "tools", len(r.defs))
	return nil
}

// Resolve returns the provider that owns the named tool.
func (r *Registry) Resolve(tool string) (Provider, bool) {
	p, ok := r.byTool[tool]
	return p, ok
}

// Definitions returns all indexed tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	return r.defs
}

// Close releases every provider's resources. Close failures are logged and
// swallowed: a provider's cleanup failure must never mask an answer that was
// already computed.
func (r *Registry) Close() {
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			r.logger.Warn("error closing provider", "provider", p.Name(), "error", err)
		}
	}
}
