package persist

import (
	"context"
	"sort"
	"sync"

	"github.com/mqttsql/persist/internal/store"
)

// MockStore is an in-memory fake satisfying store.API, usable wherever a
// store.API is accepted (writer.Config, retention.Config) without opening a
// real SQLite file. The Hook always opens its own store in Init, so the
// event handler cannot be run against a MockStore.
type MockStore struct {
	mu   sync.RWMutex
	rows map[string]store.Insert // keyed by id

	execBatchCalls int
	retentionCalls int
	closed         bool

	// FailNextCommit makes the next ExecBatch call return an error instead
	// of committing, to exercise the writer's drop-on-commit-failure path.
	FailNextCommit bool
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{rows: make(map[string]store.Insert)}
}

// LatestID implements store.API: the lexicographically greatest id among
// rows for topic, since ids are ULIDs and sort by mint time.
func (m *MockStore) LatestID(_ context.Context, topic string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, row := range m.rows {
		if row.Topic == topic {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	sort.Strings(ids)
	return ids[len(ids)-1], true, nil
}

// ExecBatch implements store.API, applying entries in order against the
// in-memory map.
func (m *MockStore) ExecBatch(_ context.Context, entries []store.Entry) (store.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.execBatchCalls++

	var result store.BatchResult
	if m.FailNextCommit {
		m.FailNextCommit = false
		return result, NewError("mockstore.execbatch", ErrCodeBatchCommit, "simulated commit failure")
	}

	for _, e := range entries {
		switch {
		case e.Insert != nil:
			m.rows[e.Insert.ID] = *e.Insert
			result.Inserted++
		case e.Delete != nil:
			if row, ok := m.rows[e.Delete.ID]; ok && row.Topic == e.Delete.Topic {
				delete(m.rows, e.Delete.ID)
				result.Deleted++
			}
		}
	}
	return result, nil
}

// Retention implements store.API, removing every row whose id sorts
// before prefix.
func (m *MockStore) Retention(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retentionCalls++

	var removed int64
	for id := range m.rows {
		if id < prefix {
			delete(m.rows, id)
			removed++
		}
	}
	return removed, nil
}

// Close implements store.API.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Testing utility methods.

// Len returns the number of rows currently held.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Get returns the stored row for id, if any.
func (m *MockStore) Get(id string) (store.Insert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	return row, ok
}

// IsClosed reports whether Close has been called.
func (m *MockStore) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// CallCounts returns the number of times each method group has been
// invoked, for assertions on batching behavior.
func (m *MockStore) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"exec_batch": m.execBatchCalls,
		"retention":  m.retentionCalls,
	}
}

var _ store.API = (*MockStore)(nil)
