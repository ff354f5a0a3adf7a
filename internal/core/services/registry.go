package services

import (
	"fmt"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ConnectorRegistry = (*Registry)(nil)

// Registry holds the configured connectors keyed by source kind.
// Registration happens once at startup; lookups are read-only after that,
// so no locking is needed.
type Registry struct {
	connectors map[domain.SourceKind]driven.Connector
	order      []domain.SourceKind
}

// NewRegistry creates a registry from the given connectors.
// Registering two connectors for the same kind returns an error.
func NewRegistry(connectors ...driven.Connector) (*Registry, error) {
	r := &Registry{
		connectors: make(map[domain.SourceKind]driven.Connector, len(connectors)),
	}
	for _, c := range connectors {
		kind := c.Kind()
		if _, exists := r.connectors[kind]; exists {
			return nil, fmt.Errorf("duplicate connector for kind %q", kind)
		}
		r.connectors[kind] = c
		r.order = append(r.order, kind)
	}
	return r, nil
}

// Get returns the connector for a kind.
func (r *Registry) Get(kind domain.SourceKind) (driven.Connector, error) {
	c, ok := r.connectors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no connector for kind %q", domain.ErrNotFound, kind)
	}
	return c, nil
}

// Kinds returns all registered kinds in registration order.
func (r *Registry) Kinds() []domain.SourceKind {
	out := make([]domain.SourceKind, len(r.order))
	copy(out, r.order)
	return out
}

// IndexableKinds returns registered kinds whose connector supports
// document indexing.
func (r *Registry) IndexableKinds() []domain.SourceKind {
	var out []domain.SourceKind
	for _, kind := range r.order {
		if r.connectors[kind].Capabilities().SupportsIndexing {
			out = append(out, kind)
		}
	}
	return out
}

// Close closes every registered connector, joining any errors.
func (r *Registry) Close() error {
	var firstErr error
	for _, kind := range r.order {
		if err := r.connectors[kind].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close connector %s: %w", kind, err)
		}
	}
	return firstErr
}
