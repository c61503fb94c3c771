package storage

import (
	"bytes"
	"sync"

	"golang.org/x/exp/slices"
)

// KeyValueStore is the raw persistence contract the ChangeSet writes through to.
type KeyValueStore interface {
	// Get returns (nil, false, nil) when key is absent.
	Get(key []byte) ([]byte, bool, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	// GetWithPrefix returns key-value pairs sorted by key.
	GetWithPrefix(prefix []byte) ([][2][]byte, error)
}

// WriteOp is one pending mutation. Value is ignored when Delete is set.
type WriteOp struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// BatchStore is a KeyValueStore that can apply several writes atomically.
type BatchStore interface {
	KeyValueStore
	WriteBatch(ops []WriteOp) error
}

// MemoryStore is a map-backed KeyValueStore for tests and throwaway chains.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (m *MemoryStore) Put(key []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = bytes.Clone(value)
	return nil
}

func (m *MemoryStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemoryStore) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	results := make([][2][]byte, 0, len(keys))
	for _, k := range keys {
		results = append(results, [2][]byte{[]byte(k), bytes.Clone(m.data[k])})
	}
	return results, nil
}

func (m *MemoryStore) WriteBatch(ops []WriteOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if op.Delete {
			delete(m.data, string(op.Key))
		} else {
			m.data[string(op.Key)] = bytes.Clone(op.Value)
		}
	}
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
