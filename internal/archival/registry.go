// Package archival moves aging operational records from their hot tables into
// per-entity archive tables, and back again on demand.
package archival

import (
	"fmt"

	"github.com/gosuda/fuelops/internal/domain"
)

// RetentionClass selects which default retention period applies to a
// collection when the policy store has no override.
type RetentionClass int

const (
	ClassOperational RetentionClass = iota
	ClassAuditLog
)

// Collection binds one entity type to its stores and age field.
type Collection struct {
	Type      domain.EntityType
	Hot       domain.HotStore
	Cold      domain.ColdStore
	DateField string
	Class     RetentionClass
}

// Registry is the set of archivable collections, built once at startup.
// Iteration order is registration order.
type Registry struct {
	order  []domain.EntityType
	byType map[domain.EntityType]*Collection
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[domain.EntityType]*Collection)}
}

// Register adds a collection. DateField defaults to createdAt.
func (r *Registry) Register(c Collection) error {
	if c.Type == "" {
		return fmt.Errorf("archival.Registry.Register: empty entity type: %w", ErrInvalidRequest)
	}
	if c.Hot == nil || c.Cold == nil {
		return fmt.Errorf("archival.Registry.Register: %s: hot and cold stores are required: %w", c.Type, ErrInvalidRequest)
	}
	if _, exists := r.byType[c.Type]; exists {
		return fmt.Errorf("archival.Registry.Register: %s: %w", c.Type, domain.ErrConflict)
	}
	if c.DateField == "" {
		c.DateField = domain.DateFieldCreatedAt
	}

	r.byType[c.Type] = &c
	r.order = append(r.order, c.Type)
	return nil
}

// Get returns the collection for an entity type.
func (r *Registry) Get(et domain.EntityType) (*Collection, error) {
	c, ok := r.byType[et]
	if !ok {
		return nil, fmt.Errorf("archival.Registry.Get: %q: %w", et, domain.ErrUnknownEntityType)
	}
	return c, nil
}

// Types lists registered entity types in registration order.
func (r *Registry) Types() []domain.EntityType {
	return append([]domain.EntityType(nil), r.order...)
}

// All lists registered collections in registration order.
func (r *Registry) All() []*Collection {
	out := make([]*Collection, 0, len(r.order))
	for _, et := range r.order {
		out = append(out, r.byType[et])
	}
	return out
}

// Select resolves names to collections, always in registration order and
// without duplicates. An empty selection means every collection.
func (r *Registry) Select(names []domain.EntityType) ([]*Collection, error) {
	if len(names) == 0 {
		return r.All(), nil
	}

	want := make(map[domain.EntityType]bool, len(names))
	for _, n := range names {
		if _, ok := r.byType[n]; !ok {
			return nil, fmt.Errorf("archival.Registry.Select: %q: %w", n, domain.ErrUnknownEntityType)
		}
		want[n] = true
	}

	out := make([]*Collection, 0, len(want))
	for _, et := range r.order {
		if want[et] {
			out = append(out, r.byType[et])
		}
	}
	return out, nil
}
