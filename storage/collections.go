package storage

import (
	"fmt"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/vmerrors"
)

// Key layout under a collection prefix: prefix|0x00 holds the element count, prefix|0x01|k holds
// elements. Compound operations hold the ChangeSet scope lock for their whole duration.
const (
	countTag   = 0x00
	elementTag = 0x01
)

// ScopedKey joins a scope (usually an address) and a collection name into a collection prefix.
func ScopedKey(scope []byte, name string) []byte {
	return common.ConcatBytes(scope, []byte("."), []byte(name))
}

type collection struct {
	cs     *ChangeSet
	prefix []byte
}

func (c collection) countKey() []byte {
	return common.ConcatBytes(c.prefix, []byte{countTag})
}

func (c collection) elementKey(k []byte) []byte {
	return common.ConcatBytes(c.prefix, []byte{elementTag}, k)
}

func (c collection) count() (uint64, error) {
	raw, ok, err := c.cs.Get(c.countKey())
	if err != nil || !ok {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt count under %x", c.prefix)
	}
	return common.BytesToUint64(raw), nil
}

func (c collection) setCount(n uint64) error {
	if n == 0 {
		return c.cs.Delete(c.countKey())
	}
	return c.cs.Put(c.countKey(), common.Uint64ToBytes(n))
}

// StorageMap is a counted key-value map under a prefix.
type StorageMap struct {
	collection
}

func NewStorageMap(cs *ChangeSet, prefix []byte) *StorageMap {
	return &StorageMap{collection{cs: cs, prefix: prefix}}
}

func (m *StorageMap) Get(key []byte) ([]byte, bool, error) {
	m.cs.Lock()
	defer m.cs.Unlock()
	return m.cs.Get(m.elementKey(key))
}

func (m *StorageMap) ContainsKey(key []byte) (bool, error) {
	m.cs.Lock()
	defer m.cs.Unlock()
	return m.cs.Has(m.elementKey(key))
}

// Set stores value under key and reports whether key is new.
func (m *StorageMap) Set(key []byte, value []byte) (bool, error) {
	m.cs.Lock()
	defer m.cs.Unlock()

	exists, err := m.cs.Has(m.elementKey(key))
	if err != nil {
		return false, err
	}
	if err := m.cs.Put(m.elementKey(key), value); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	n, err := m.count()
	if err != nil {
		return false, err
	}
	return true, m.setCount(n + 1)
}

// Remove deletes key and reports whether it was present.
func (m *StorageMap) Remove(key []byte) (bool, error) {
	m.cs.Lock()
	defer m.cs.Unlock()

	exists, err := m.cs.Has(m.elementKey(key))
	if err != nil || !exists {
		return false, err
	}
	if err := m.cs.Delete(m.elementKey(key)); err != nil {
		return false, err
	}
	n, err := m.count()
	if err != nil {
		return false, err
	}
	if n > 0 {
		n--
	}
	return true, m.setCount(n)
}

func (m *StorageMap) Count() (uint64, error) {
	m.cs.Lock()
	defer m.cs.Unlock()
	return m.count()
}

// Entries returns every element sorted by key, with the collection prefix stripped.
func (m *StorageMap) Entries() ([][2][]byte, error) {
	m.cs.Lock()
	defer m.cs.Unlock()

	elementPrefix := m.elementKey(nil)
	raw, err := m.cs.GetWithPrefix(elementPrefix)
	if err != nil {
		return nil, err
	}
	for i := range raw {
		raw[i][0] = raw[i][0][len(elementPrefix):]
	}
	return raw, nil
}

// StorageList is an append-only indexed list under a prefix.
type StorageList struct {
	collection
}

func NewStorageList(cs *ChangeSet, prefix []byte) *StorageList {
	return &StorageList{collection{cs: cs, prefix: prefix}}
}

// Add appends value and returns its index.
func (l *StorageList) Add(value []byte) (uint64, error) {
	l.cs.Lock()
	defer l.cs.Unlock()

	n, err := l.count()
	if err != nil {
		return 0, err
	}
	if err := l.cs.Put(l.elementKey(common.Uint64ToBytes(n)), value); err != nil {
		return 0, err
	}
	return n, l.setCount(n + 1)
}

func (l *StorageList) Get(index uint64) ([]byte, error) {
	l.cs.Lock()
	defer l.cs.Unlock()
	return l.get(index)
}

func (l *StorageList) get(index uint64) ([]byte, error) {
	n, err := l.count()
	if err != nil {
		return nil, err
	}
	if index >= n {
		return nil, fmt.Errorf("%w: index %d of %d", vmerrors.ErrNotFound, index, n)
	}
	value, ok, err := l.cs.Get(l.elementKey(common.Uint64ToBytes(index)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: index %d", vmerrors.ErrNotFound, index)
	}
	return value, nil
}

func (l *StorageList) Replace(index uint64, value []byte) error {
	l.cs.Lock()
	defer l.cs.Unlock()

	n, err := l.count()
	if err != nil {
		return err
	}
	if index >= n {
		return fmt.Errorf("%w: index %d of %d", vmerrors.ErrNotFound, index, n)
	}
	return l.cs.Put(l.elementKey(common.Uint64ToBytes(index)), value)
}

func (l *StorageList) Count() (uint64, error) {
	l.cs.Lock()
	defer l.cs.Unlock()
	return l.count()
}

func (l *StorageList) All() ([][]byte, error) {
	l.cs.Lock()
	defer l.cs.Unlock()

	n, err := l.count()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := l.get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// StorageSet is a counted set of byte keys under a prefix.
type StorageSet struct {
	m *StorageMap
}

func NewStorageSet(cs *ChangeSet, prefix []byte) *StorageSet {
	return &StorageSet{m: NewStorageMap(cs, prefix)}
}

// Add inserts key and reports whether it was absent.
func (s *StorageSet) Add(key []byte) (bool, error) {
	return s.m.Set(key, []byte{1})
}

func (s *StorageSet) Contains(key []byte) (bool, error) {
	return s.m.ContainsKey(key)
}

func (s *StorageSet) Remove(key []byte) (bool, error) {
	return s.m.Remove(key)
}

func (s *StorageSet) Count() (uint64, error) {
	return s.m.Count()
}
