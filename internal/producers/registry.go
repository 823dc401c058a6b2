// Package producers holds the static capability table of signal producers.
package producers

import (
	"fmt"
	"sort"

	"alpha-auditor/internal/models"
)

// Producer describes one registered signal producer.
type Producer struct {
	ID            string
	Name          string
	Category      models.Category
	Bounds        models.Bounds
	InitialWeight float64
}

// Registry answers category and bounds lookups for producers.
type Registry struct {
	producers map[string]Producer
	order     []string
}

// NewRegistry builds a registry. Duplicate IDs and unknown categories are rejected.
func NewRegistry(list []Producer) (*Registry, error) {
	r := &Registry{producers: make(map[string]Producer, len(list))}
	for _, p := range list {
		if p.ID == "" {
			return nil, fmt.Errorf("producer with empty id")
		}
		if _, dup := r.producers[p.ID]; dup {
			return nil, fmt.Errorf("duplicate producer %q", p.ID)
		}
		if !models.ValidCategory(p.Category) {
			return nil, fmt.Errorf("producer %q has invalid category %q", p.ID, p.Category)
		}
		r.producers[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

// Default returns the standard five-producer roster.
func Default() *Registry {
	r, _ := NewRegistry([]Producer{
		{ID: "valuator", Name: "The Valuator (Fundamental)", Category: models.FailureFundamental, Bounds: models.Bounds{Min: 0.20, Max: 0.50}, InitialWeight: 0.35},
		{ID: "chip_watcher", Name: "The Chip Watcher (Institutional)", Category: models.FailureInstitutional, Bounds: models.Bounds{Min: 0.10, Max: 0.35}, InitialWeight: 0.25},
		{ID: "whale_hunter", Name: "The Whale Hunter (Large Holders)", Category: models.FailureInstitutional, Bounds: models.Bounds{Min: 0.10, Max: 0.35}, InitialWeight: 0.20},
		{ID: "strategist", Name: "The Strategist (Macro)", Category: models.FailureMacro, Bounds: models.Bounds{Min: 0.05, Max: 0.25}, InitialWeight: 0.15},
		{ID: "chartist", Name: "The Chartist (Technical)", Category: models.FailureTechnical, Bounds: models.Bounds{Min: 0.02, Max: 0.20}, InitialWeight: 0.05},
	})
	return r
}

// CategoryOf returns the producer's category.
func (r *Registry) CategoryOf(id string) (models.Category, bool) {
	p, ok := r.producers[id]
	return p.Category, ok
}

// BoundsOf returns the producer's weight bounds, [0,1] when unregistered.
func (r *Registry) BoundsOf(id string) models.Bounds {
	if p, ok := r.producers[id]; ok {
		return p.Bounds
	}
	return models.Bounds{Min: 0, Max: 1}
}

// Bounds returns the bounds of every registered producer.
func (r *Registry) Bounds() map[string]models.Bounds {
	out := make(map[string]models.Bounds, len(r.producers))
	for id, p := range r.producers {
		out[id] = p.Bounds
	}
	return out
}

// InitialWeights returns the seed weight vector.
func (r *Registry) InitialWeights() models.WeightVector {
	w := make(models.WeightVector, len(r.producers))
	for id, p := range r.producers {
		w[id] = p.InitialWeight
	}
	return w
}

// Get returns a registered producer.
func (r *Registry) Get(id string) (Producer, bool) {
	p, ok := r.producers[id]
	return p, ok
}

// IDs returns registered producer IDs in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DisplayName returns the human name, falling back to the ID.
func (r *Registry) DisplayName(id string) string {
	if p, ok := r.producers[id]; ok && p.Name != "" {
		return p.Name
	}
	return id
}
