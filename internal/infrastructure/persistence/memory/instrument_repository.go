package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jmanzanog/price-reconciler/internal/domain"
)

// InstrumentRepository keeps instruments and indices in process memory.
// Returned values are copies.
type InstrumentRepository struct {
	mu          sync.RWMutex
	instruments map[string]domain.Instrument
	indices     map[string]domain.Index
	components  map[string][]string
}

func NewInstrumentRepository() *InstrumentRepository {
	return &InstrumentRepository{
		instruments: make(map[string]domain.Instrument),
		indices:     make(map[string]domain.Index),
		components:  make(map[string][]string),
	}
}

func (r *InstrumentRepository) FindByName(ctx context.Context, name string) (*domain.Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, exists := r.instruments[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrInstrumentNotFound, name)
	}
	inst.InvalidTickers = slices.Clone(inst.InvalidTickers)
	return &inst, nil
}

func (r *InstrumentRepository) FindAll(ctx context.Context) ([]domain.Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		inst.InvalidTickers = slices.Clone(inst.InvalidTickers)
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b domain.Instrument) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (r *InstrumentRepository) Create(ctx context.Context, inst *domain.Instrument) error {
	return r.save(inst)
}

func (r *InstrumentRepository) Update(ctx context.Context, inst *domain.Instrument) error {
	return r.save(inst)
}

func (r *InstrumentRepository) save(inst *domain.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *inst
	stored.InvalidTickers = slices.Clone(inst.InvalidTickers)
	if prev, ok := r.instruments[inst.Name]; ok {
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
	}
	r.instruments[inst.Name] = stored
	return nil
}

func (r *InstrumentRepository) FindIndex(ctx context.Context, name string) (*domain.Index, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, exists := r.indices[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	idx.Components = r.sortedComponents(name)
	return &idx, nil
}

func (r *InstrumentRepository) FindAllIndices(ctx context.Context) ([]domain.Index, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Index, 0, len(r.indices))
	for name, idx := range r.indices {
		idx.Components = r.sortedComponents(name)
		out = append(out, idx)
	}
	slices.SortFunc(out, func(a, b domain.Index) int {
		return cmp.Or(cmp.Compare(a.Country, b.Country), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

func (r *InstrumentRepository) CreateIndex(ctx context.Context, idx *domain.Index) error {
	return r.saveIndex(idx)
}

func (r *InstrumentRepository) UpdateIndex(ctx context.Context, idx *domain.Index) error {
	return r.saveIndex(idx)
}

func (r *InstrumentRepository) saveIndex(idx *domain.Index) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *idx
	stored.Components = nil
	if prev, ok := r.indices[idx.Name]; ok {
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
	}
	r.indices[idx.Name] = stored
	return nil
}

func (r *InstrumentRepository) IndexComponents(ctx context.Context, indexName string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedComponents(indexName), nil
}

func (r *InstrumentRepository) SetIndexComponents(ctx context.Context, indexName string, components []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := slices.Clone(components)
	slices.Sort(set)
	r.components[indexName] = slices.Compact(set)
	return nil
}

// sortedComponents must be called with mu held.
func (r *InstrumentRepository) sortedComponents(indexName string) []string {
	out := slices.Clone(r.components[indexName])
	if out == nil {
		out = []string{}
	}
	return out
}
