// Package workitems reads backlog items from the shared store. The
// dashboard owns these rows; the engine only looks them up.
package workitems

import (
	"fmt"

	"mason-engine/internal/models"

	"gorm.io/gorm"
)

// DefaultCacheSize caps the LRU cache of fetched items.
const DefaultCacheSize = 256

// Store fetches work items by id through an LRU cache.
type Store struct {
	db    *gorm.DB
	cache *itemCache
}

// NewStore creates a work-item store with the default cache size.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		cache: newItemCache(DefaultCacheSize),
	}
}

// Get returns the work item with the given id, from cache when possible.
func (s *Store) Get(itemID string) (*models.WorkItem, error) {
	if item, ok := s.cache.Get(itemID); ok {
		return item, nil
	}

	var item models.WorkItem
	if err := s.db.Where(models.ColID+" = ?", itemID).First(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to load work item %s: %w", itemID, err)
	}

	s.cache.Put(itemID, &item)
	return &item, nil
}

// Invalidate drops one item from the cache, forcing the next Get to hit
// the store.
func (s *Store) Invalidate(itemID string) {
	s.cache.Remove(itemID)
}
