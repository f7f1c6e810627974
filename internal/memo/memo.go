// Package memo records which neurons a cascade has already expanded.
package memo

import (
	"context"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/store"
)

// Memo is the "already processed" predicate consulted by the crawler. Seen is checked
// before a neuron is queried; Mark is called once the neuron's result is durable or the
// neuron turned out to be a leaf.
type Memo interface {
	Seen(ctx context.Context, id domain.NeuronID) (bool, error)
	Mark(ctx context.Context, id domain.NeuronID) error
}

// Factory opens the memo for one cascade run.
type Factory func(ctx context.Context, run string) (Memo, error)

// Bitmap is an in-process Memo.
type Bitmap struct {
	mu   sync.Mutex
	seen *roaring64.Bitmap
}

// NewBitmap returns an empty Bitmap memo seeded with ids.
func NewBitmap(ids ...domain.NeuronID) *Bitmap {
	b := &Bitmap{seen: roaring64.New()}
	for _, id := range ids {
		b.seen.Add(uint64(id))
	}
	return b
}

func (b *Bitmap) Seen(_ context.Context, id domain.NeuronID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seen.Contains(uint64(id)), nil
}

func (b *Bitmap) Mark(_ context.Context, id domain.NeuronID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen.Add(uint64(id))
	return nil
}

// Len returns the number of recorded neurons.
func (b *Bitmap) Len() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seen.GetCardinality()
}

// NewDirectory lists the run's existing results once and returns a Bitmap seeded with
// them. Neurons marked during the run are remembered too, so a neuron listed twice in a
// layer is expanded once.
func NewDirectory(ctx context.Context, results store.Store, run string) (*Bitmap, error) {
	ids, err := results.List(ctx, run)
	if err != nil {
		return nil, err
	}
	return NewBitmap(ids...), nil
}

// DirectoryFactory returns a Factory backed by NewDirectory.
func DirectoryFactory(results store.Store) Factory {
	return func(ctx context.Context, run string) (Memo, error) {
		return NewDirectory(ctx, results, run)
	}
}

// MemoryFactory returns a Factory that starts every run empty.
func MemoryFactory() Factory {
	return func(context.Context, string) (Memo, error) {
		return NewBitmap(), nil
	}
}

// Seeded wraps next so that every run it opens starts with the run's existing results
// marked, as a Directory memo does. Marks already held by next are kept.
func Seeded(results store.Store, next Factory) Factory {
	return func(ctx context.Context, run string) (Memo, error) {
		m, err := next(ctx, run)
		if err != nil {
			return nil, err
		}
		ids, err := results.List(ctx, run)
		if err != nil {
			return nil, fmt.Errorf("seed memo for %s: %w", run, err)
		}
		for _, id := range ids {
			if err := m.Mark(ctx, id); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
}
