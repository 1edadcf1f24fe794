// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/adapter"
	"avisflow/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memBatchRepo is a small in-memory implementation used by unit tests.
type memBatchRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Batch
	order []string // insertion order, newest last
	seq   int
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{store: make(map[string]*model.Batch)}
}

func (m *memBatchRepo) Save(ctx context.Context, tx repository.Tx, b *model.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		m.seq++
		b.ID = fmt.Sprintf("batch-%d", m.seq)
		m.order = append(m.order, b.ID)
	}
	cp := *b
	m.store[b.ID] = &cp
	return nil
}

func (m *memBatchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBatchRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status != from {
		return domain.ErrInvalidTransition
	}
	b.Status = to
	if to == model.BatchStatusProcessing {
		now := time.Now()
		b.StartedAt = &now
	}
	return nil
}

func (m *memBatchRepo) ListByStatus(ctx context.Context, batchType string, status model.BatchStatus) ([]*model.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Batch
	for _, id := range m.order {
		b := m.store[id]
		if b.Status != status {
			continue
		}
		if batchType != "" && b.Type != batchType {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memBatchRepo) ListFailedForRetry(ctx context.Context, batchType string, maxAge time.Duration) ([]*model.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cut := time.Now().Add(-maxAge)
	var out []*model.Batch
	for _, id := range m.order {
		b := m.store[id]
		if b.Status != model.BatchStatusFailed || !b.CanRetry() {
			continue
		}
		if batchType != "" && b.Type != batchType {
			continue
		}
		if b.CreatedAt.Before(cut) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RetryCount < out[j].RetryCount })
	return out, nil
}

func (m *memBatchRepo) LastCompleted(ctx context.Context, batchType string) (*model.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		b := m.store[m.order[i]]
		if b.Status == model.BatchStatusCompleted && b.Type == batchType {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memBatchRepo) Stats(ctx context.Context) (*repository.BatchStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := &repository.BatchStats{}
	for _, b := range m.store {
		st.TotalBatches++
		switch b.Status {
		case model.BatchStatusPending:
			st.Pending++
		case model.BatchStatusProcessing:
			st.Processing++
		case model.BatchStatusCompleted:
			st.Completed++
		case model.BatchStatusFailed:
			st.Failed++
		}
		st.ItemsProcessed += b.ItemsProcessed
		st.ItemsSuccess += b.ItemsSuccess
		st.ItemsFailed += b.ItemsFailed
	}
	if st.ItemsProcessed > 0 {
		st.SuccessRate = float64(st.ItemsSuccess) / float64(st.ItemsProcessed) * 100
	}
	return st, nil
}

// memFailedItemRepo keeps failed items in memory for tests.
type memFailedItemRepo struct {
	mu    sync.RWMutex
	store map[string]*model.FailedItem
	order []string
	seq   int
}

func newMemFailedItemRepo() *memFailedItemRepo {
	return &memFailedItemRepo{store: make(map[string]*model.FailedItem)}
}

func (m *memFailedItemRepo) Save(ctx context.Context, tx repository.Tx, item *model.FailedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		m.seq++
		item.ID = fmt.Sprintf("item-%d", m.seq)
		m.order = append(m.order, item.ID)
	}
	cp := *item
	m.store[item.ID] = &cp
	return nil
}

func (m *memFailedItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.FailedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memFailedItemRepo) ListForRetry(ctx context.Context, itemType string, limit int) ([]*model.FailedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.FailedItem
	for _, id := range m.order {
		it := m.store[id]
		if !it.CanRetry() {
			continue
		}
		if itemType != "" && it.ItemType != itemType {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RetryCount != out[j].RetryCount {
			return out[i].RetryCount < out[j].RetryCount
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// all returns every stored item, insertion order.
func (m *memFailedItemRepo) all() []*model.FailedItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.FailedItem
	for _, id := range m.order {
		cp := *m.store[id]
		out = append(out, &cp)
	}
	return out
}

// fakeTxManager is a passthrough transaction manager that counts how
// often a transaction ran and how often the callback failed (which the
// real manager answers with a rollback).
type fakeTxManager struct {
	mu        sync.Mutex
	calls     int
	rollbacks int
}

func (f *fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := fn(ctx, nil); err != nil {
		f.mu.Lock()
		f.rollbacks++
		f.mu.Unlock()
		return err
	}
	return nil
}

// memWorkItemRepo serves the read side of work items.
type memWorkItemRepo struct {
	mu       sync.RWMutex
	store    map[string]*model.WorkItem
	touchErr error
}

func newMemWorkItemRepo() *memWorkItemRepo {
	return &memWorkItemRepo{store: make(map[string]*model.WorkItem)}
}

func (m *memWorkItemRepo) add(items ...*model.WorkItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wi := range items {
		cp := *wi
		m.store[wi.ID] = &cp
	}
}

func (m *memWorkItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wi, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *wi
	return &cp, nil
}

func (m *memWorkItemRepo) ListIDsAfter(ctx context.Context, afterID string, limit int, includeInactive bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, wi := range m.store {
		if id <= afterID {
			continue
		}
		if !includeInactive && !wi.IsActive {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memWorkItemRepo) UpdateMetaDescription(ctx context.Context, tx repository.Tx, id, metaDescription string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wi, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	wi.MetaDescription = metaDescription
	return nil
}

func (m *memWorkItemRepo) TouchGeneratedAt(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	wi, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	wi.LastGeneratedAt = &now
	return nil
}

// memArtifactRepo records upserts keyed by (work_item_id, kind).
type memArtifactRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.GeneratedArtifact
	upserts int
}

func newMemArtifactRepo() *memArtifactRepo {
	return &memArtifactRepo{store: make(map[string]*model.GeneratedArtifact)}
}

func artifactKey(workItemID string, kind model.ContentKind) string {
	return workItemID + "/" + string(kind)
}

func (m *memArtifactRepo) Upsert(ctx context.Context, tx repository.Tx, a *model.GeneratedArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	cp := *a
	m.store[artifactKey(a.WorkItemID, a.Kind)] = &cp
	return nil
}

func (m *memArtifactRepo) FindByWorkItem(ctx context.Context, tx repository.Tx, workItemID string, kind model.ContentKind) (*model.GeneratedArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[artifactKey(workItemID, kind)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// fakeGeneration scripts StartJob and a sequence of poll responses.
type fakeGeneration struct {
	mu sync.Mutex

	startErr   error
	jobID      string
	startCalls int

	// statuses is consumed front-to-back; when exhausted the last entry
	// repeats.
	statuses    []adapter.JobStatus
	statusErr   error
	statusCalls int

	fetchResult *adapter.GeneratedContent
	fetchErr    error
	fetchCalls  int
}

func (f *fakeGeneration) StartJob(ctx context.Context, req adapter.StartJobRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return "", f.startErr
	}
	if f.jobID == "" {
		f.jobID = "job-1"
	}
	return f.jobID, nil
}

func (f *fakeGeneration) GetJobStatus(ctx context.Context, jobID string) (*adapter.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return &adapter.JobStatus{Status: "queued"}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &st, nil
}

func (f *fakeGeneration) FetchResult(ctx context.Context, resultURL string) (*adapter.GeneratedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.fetchResult, nil
}

func (f *fakeGeneration) DecryptBatch(ctx context.Context, req adapter.DecryptBatchRequest) (*adapter.DecryptBatchResult, error) {
	return &adapter.DecryptBatchResult{}, nil
}

func (f *fakeGeneration) DecryptMultiBatch(ctx context.Context, reqs []adapter.DecryptBatchRequest, useLLM bool) (*adapter.MultiBatchResult, error) {
	return &adapter.MultiBatchResult{Total: len(reqs)}, nil
}

// fakeQueue records enqueued tasks; failOn simulates broker failures for
// specific work items.
type fakeQueue struct {
	mu     sync.Mutex
	starts []model.StartTask
	polls  []model.PollTask
	delays []time.Duration
	failOn map[string]error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failOn: make(map[string]error)}
}

func (q *fakeQueue) EnqueueStart(ctx context.Context, task model.StartTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err, ok := q.failOn[task.WorkItemID]; ok {
		return err
	}
	q.starts = append(q.starts, task)
	return nil
}

func (q *fakeQueue) EnqueuePoll(ctx context.Context, task model.PollTask, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.polls = append(q.polls, task)
	q.delays = append(q.delays, delay)
	return nil
}

// fakeLocker grants or denies the scheduler lock.
type fakeLocker struct {
	mu      sync.Mutex
	held    bool
	locks   int
	unlocks int
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return "", domain.ErrLockHeld
	}
	l.locks++
	l.held = true
	return "token-1", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocks++
	l.held = false
	return nil
}
