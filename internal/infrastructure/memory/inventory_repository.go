package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
)

// InventoryRepository keeps snapshots in memory keyed by path. Services under test use it in place of the file store.
type InventoryRepository struct {
	mu    sync.RWMutex
	snaps map[string]domain.Snapshot
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		snaps: make(map[string]domain.Snapshot),
	}
}

func (r *InventoryRepository) Load(ctx context.Context, path string) (domain.Snapshot, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.snaps[path]
	if !ok {
		return domain.Snapshot{}, nil
	}
	return cloneSnapshot(snap), nil
}

func (r *InventoryRepository) Save(ctx context.Context, path string, snap domain.Snapshot) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	r.snaps[path] = cloneSnapshot(snap)
	return nil
}

// Put seeds path with snap without validation, letting tests stage corrupt data.
func (r *InventoryRepository) Put(path string, snap domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[path] = cloneSnapshot(snap)
}

func cloneSnapshot(snap domain.Snapshot) domain.Snapshot {
	if snap == nil {
		return nil
	}
	return append(domain.Snapshot(nil), snap...)
}
