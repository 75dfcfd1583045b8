package memory

import (
	"context"
	"sync"

	"history-ranking-service/internal/domain"
)

// Directory is an in-memory identity resolver.
type Directory struct {
	mu      sync.RWMutex
	handles map[domain.AccountID]domain.DisplayHandle
}

func NewDirectory(handles map[domain.AccountID]domain.DisplayHandle) *Directory {
	d := &Directory{handles: make(map[domain.AccountID]domain.DisplayHandle, len(handles))}
	for id, h := range handles {
		d.handles[id] = h
	}
	return d
}

// Set registers or renames an account.
func (d *Directory) Set(id domain.AccountID, handle domain.DisplayHandle) {
	d.mu.Lock()
	d.handles[id] = handle
	d.mu.Unlock()
}

func (d *Directory) ResolveDisplayNames(_ context.Context, ids []domain.AccountID) (map[domain.AccountID]domain.DisplayHandle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[domain.AccountID]domain.DisplayHandle, len(ids))
	for _, id := range ids {
		if h, ok := d.handles[id]; ok {
			out[id] = h
		}
	}
	return out, nil
}
