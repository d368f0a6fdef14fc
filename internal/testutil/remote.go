package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/lifequest/internal/store"
)

// MemoryStore is an in-memory document store with the same contract as
// store.Store, plus failure injection.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]map[string]store.Document
	failures []error
	writes   int
	attempts int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]store.Document)}
}

// FailNext makes the next n calls fail with err, in order. Calls to
// FailNext accumulate.
func (m *MemoryStore) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, err)
	}
}

// Get returns a stored document or store.ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.next(ctx); err != nil {
		return store.Document{}, err
	}
	doc, ok := m.docs[collection][id]
	if !ok {
		return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, store.ErrNotFound)
	}
	return doc, nil
}

// List returns a collection ordered by id.
func (m *MemoryStore) List(ctx context.Context, collection string) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.next(ctx); err != nil {
		return nil, err
	}
	out := []store.Document{}
	for _, d := range m.docs[collection] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert stores a document, last write wins.
func (m *MemoryStore) Upsert(ctx context.Context, collection, id string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if err := m.next(ctx); err != nil {
		return err
	}
	c, ok := m.docs[collection]
	if !ok {
		c = make(map[string]store.Document)
		m.docs[collection] = c
	}
	prev := c[id]
	c[id] = store.Document{
		Collection: collection,
		ID:         id,
		Body:       append([]byte(nil), body...),
		Version:    prev.Version + 1,
		UpdatedAt:  time.Now(),
	}
	m.writes++
	return nil
}

// Delete removes a document; missing documents are ignored.
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if err := m.next(ctx); err != nil {
		return err
	}
	delete(m.docs[collection], id)
	m.writes++
	return nil
}

// Body returns the stored body of a document, or nil.
func (m *MemoryStore) Body(collection, id string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil
	}
	return doc.Body
}

// Len returns the number of documents in a collection.
func (m *MemoryStore) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

// Writes returns the number of successful upserts and deletes.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Attempts returns the number of upsert and delete calls, failed or not.
func (m *MemoryStore) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// next pops an injected failure. Caller holds m.mu.
func (m *MemoryStore) next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}
