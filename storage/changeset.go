package storage

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/colorfulnotion/nexusvm/log"
	"golang.org/x/exp/slices"
)

// ChangeSet is a write overlay over a KeyValueStore. Reads see pending writes; nothing reaches the
// base store until Execute.
type ChangeSet struct {
	base KeyValueStore

	mu      sync.RWMutex
	journal []WriteOp
	pending map[string]int // key -> index of latest op in journal

	// scope is held by compound collection operations. It is separate from mu so a scoped
	// operation can still call Get/Put.
	scope sync.Mutex
}

func NewChangeSet(base KeyValueStore) *ChangeSet {
	return &ChangeSet{
		base:    base,
		pending: make(map[string]int),
	}
}

// Lock takes the scoped storage lock.
func (cs *ChangeSet) Lock() {
	cs.scope.Lock()
}

func (cs *ChangeSet) Unlock() {
	cs.scope.Unlock()
}

func (cs *ChangeSet) record(op WriteOp) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.pending[string(op.Key)] = len(cs.journal)
	cs.journal = append(cs.journal, op)
}

func (cs *ChangeSet) Put(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("ChangeSet Put: empty key")
	}
	cs.record(WriteOp{Key: bytes.Clone(key), Value: bytes.Clone(value)})
	return nil
}

func (cs *ChangeSet) Delete(key []byte) error {
	cs.record(WriteOp{Key: bytes.Clone(key), Delete: true})
	return nil
}

func (cs *ChangeSet) Get(key []byte) ([]byte, bool, error) {
	cs.mu.RLock()
	idx, ok := cs.pending[string(key)]
	var op WriteOp
	if ok {
		op = cs.journal[idx]
	}
	cs.mu.RUnlock()

	if ok {
		if op.Delete {
			return nil, false, nil
		}
		return bytes.Clone(op.Value), true, nil
	}
	return cs.base.Get(key)
}

func (cs *ChangeSet) Has(key []byte) (bool, error) {
	_, ok, err := cs.Get(key)
	return ok, err
}

// GetWithPrefix merges pending writes over the base store's view.
func (cs *ChangeSet) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	baseResults, err := cs.base.GetWithPrefix(prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string][]byte, len(baseResults))
	for _, kv := range baseResults {
		merged[string(kv[0])] = kv[1]
	}

	cs.mu.RLock()
	for k, idx := range cs.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if op := cs.journal[idx]; op.Delete {
			delete(merged, k)
		} else {
			merged[k] = bytes.Clone(op.Value)
		}
	}
	cs.mu.RUnlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	results := make([][2][]byte, 0, len(keys))
	for _, k := range keys {
		results = append(results, [2][]byte{[]byte(k), merged[k]})
	}
	return results, nil
}

// Any reports whether a Put or Delete was recorded since creation or the last Undo/Execute.
func (cs *ChangeSet) Any() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.journal) > 0
}

func (cs *ChangeSet) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.journal)
}

// Execute applies pending writes to the base store in the order they were recorded, then clears
// the overlay. Batch-capable stores apply them atomically.
func (cs *ChangeSet) Execute() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if len(cs.journal) == 0 {
		return nil
	}

	if batcher, ok := cs.base.(BatchStore); ok {
		if err := batcher.WriteBatch(cs.journal); err != nil {
			return err
		}
	} else {
		for _, op := range cs.journal {
			var err error
			if op.Delete {
				err = cs.base.Delete(op.Key)
			} else {
				err = cs.base.Put(op.Key, op.Value)
			}
			if err != nil {
				return fmt.Errorf("ChangeSet Execute %x: %w", op.Key, err)
			}
		}
	}

	log.Debug(log.StorageMonitoring, "ChangeSet executed", "ops", len(cs.journal))
	cs.clear()
	return nil
}

// Undo discards every pending write.
func (cs *ChangeSet) Undo() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.journal) > 0 {
		log.Debug(log.StorageMonitoring, "ChangeSet undone", "ops", len(cs.journal))
	}
	cs.clear()
}

func (cs *ChangeSet) clear() {
	cs.journal = nil
	cs.pending = make(map[string]int)
}
