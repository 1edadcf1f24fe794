//go:build !integration

package web

import (
	"context"
	"sync"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/repository"
)

// --- Mock Repositories (Ports) ---

type mockBatchRepo struct {
	repository.BatchRepository // Embed interface for forward compatibility
	mu                         sync.Mutex
	batches                    []*model.Batch
	stats                      repository.BatchStats
	StatsError                 error
	ListError                  error
}

func (m *mockBatchRepo) ListByStatus(ctx context.Context, batchType string, status model.BatchStatus) ([]*model.Batch, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Batch
	for _, b := range m.batches {
		if b.Status != status {
			continue
		}
		if batchType != "" && b.Type != batchType {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *mockBatchRepo) Stats(ctx context.Context) (*repository.BatchStats, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	s := m.stats
	return &s, nil
}

type mockFailedItemRepo struct {
	repository.FailedItemRepository
	mu    sync.Mutex
	items map[string]*model.FailedItem
}

func newMockFailedItemRepo() *mockFailedItemRepo {
	return &mockFailedItemRepo{items: make(map[string]*model.FailedItem)}
}

func (m *mockFailedItemRepo) Save(ctx context.Context, tx repository.Tx, item *model.FailedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockFailedItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.FailedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *mockFailedItemRepo) ListForRetry(ctx context.Context, itemType string, limit int) ([]*model.FailedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FailedItem
	for _, item := range m.items {
		if item.IsResolved || item.RetryCount >= item.MaxRetries {
			continue
		}
		if itemType != "" && item.ItemType != itemType {
			continue
		}
		cp := *item
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
