package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// ProductStore is an in-memory ProductRepository. One mutex serializes the
// whole batch so concurrent upserts of a key cannot both count as added.
type ProductStore struct {
	mu       sync.Mutex
	clock    crawler.Clock
	products map[string]crawler.PersistedProduct
}

// NewProductStore constructs a ProductStore stamped by clock.
func NewProductStore(clock crawler.Clock) *ProductStore {
	return &ProductStore{
		clock:    clock,
		products: make(map[string]crawler.PersistedProduct),
	}
}

// UpsertBatch inserts new records and refreshes existing ones. ScrapedAt is
// kept from the first insert and IsActive is never touched on update.
func (s *ProductStore) UpsertBatch(_ context.Context, records []crawler.ScrapedRecord) (crawler.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := crawler.ValidateForPersistence(records); err != nil {
		return crawler.UpsertResult{}, err
	}

	var res crawler.UpsertResult
	now := s.clock.Now()
	for _, rec := range records {
		key := rec.Key()
		existing, ok := s.products[key]
		if ok {
			existing.Record = rec
			existing.LastUpdated = now
			s.products[key] = existing
			res.Updated++
			continue
		}
		s.products[key] = crawler.PersistedProduct{
			Key:         key,
			Record:      rec,
			ScrapedAt:   now,
			LastUpdated: now,
			IsActive:    true,
		}
		res.Added++
	}
	return res, nil
}

// GetProduct returns the stored product for key.
func (s *ProductStore) GetProduct(_ context.Context, key string) (crawler.PersistedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[key]
	if !ok {
		return crawler.PersistedProduct{}, fmt.Errorf("product %s: %w", key, crawler.ErrNotFound)
	}
	return p, nil
}

// List returns all products ordered by key.
func (s *ProductStore) List() []crawler.PersistedProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crawler.PersistedProduct, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
