package storage

import (
	"errors"
	"sync"
	"testing"

	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainStore hides WriteBatch so Execute takes the op-by-op path.
type plainStore struct {
	KeyValueStore
	puts []string
}

func (p *plainStore) Put(key, value []byte) error {
	p.puts = append(p.puts, string(key))
	return p.KeyValueStore.Put(key, value)
}

func TestChangeSetOverlay(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			base := factory(t)
			require.NoError(t, base.Put([]byte("k1"), []byte("base")))

			cs := NewChangeSet(base)
			assert.False(t, cs.Any())

			require.NoError(t, cs.Put([]byte("k1"), []byte("overlay")))
			require.NoError(t, cs.Put([]byte("k2"), []byte("new")))
			assert.True(t, cs.Any())

			v, ok, err := cs.Get([]byte("k1"))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("overlay"), v)

			v, _, _ = base.Get([]byte("k1"))
			assert.Equal(t, []byte("base"), v)

			require.NoError(t, cs.Delete([]byte("k1")))
			ok, err = cs.Has([]byte("k1"))
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, cs.Execute())
			assert.False(t, cs.Any())

			_, ok, _ = base.Get([]byte("k1"))
			assert.False(t, ok)
			v, ok, _ = base.Get([]byte("k2"))
			require.True(t, ok)
			assert.Equal(t, []byte("new"), v)
		})
	}
}

func TestChangeSetUndo(t *testing.T) {
	base := NewMemoryStore()
	cs := NewChangeSet(base)
	require.NoError(t, cs.Put([]byte("k"), []byte("v")))
	cs.Undo()

	assert.False(t, cs.Any())
	_, ok, err := cs.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, cs.Execute())
	assert.Equal(t, 0, base.Len())
}

func TestChangeSetDeleteCountsAsMutation(t *testing.T) {
	cs := NewChangeSet(NewMemoryStore())
	require.NoError(t, cs.Delete([]byte("never-existed")))
	assert.True(t, cs.Any())
}

func TestChangeSetExecuteInInsertionOrder(t *testing.T) {
	base := &plainStore{KeyValueStore: NewMemoryStore()}
	cs := NewChangeSet(base)
	for _, k := range []string{"c", "a", "b", "a"} {
		require.NoError(t, cs.Put([]byte(k), []byte(k)))
	}
	require.NoError(t, cs.Execute())
	assert.Equal(t, []string{"c", "a", "b", "a"}, base.puts)
}

func TestChangeSetPrefixMerge(t *testing.T) {
	base := NewMemoryStore()
	require.NoError(t, base.Put([]byte("p.a"), []byte("1")))
	require.NoError(t, base.Put([]byte("p.b"), []byte("2")))

	cs := NewChangeSet(base)
	require.NoError(t, cs.Delete([]byte("p.a")))
	require.NoError(t, cs.Put([]byte("p.c"), []byte("3")))
	require.NoError(t, cs.Put([]byte("q.z"), []byte("9")))

	results, err := cs.GetWithPrefix([]byte("p."))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p.b", string(results[0][0]))
	assert.Equal(t, "p.c", string(results[1][0]))
}

func TestStorageMap(t *testing.T) {
	cs := NewChangeSet(NewMemoryStore())
	m := NewStorageMap(cs, ScopedKey([]byte("owner"), "balances"))

	created, err := m.Set([]byte("alice"), []byte{1})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = m.Set([]byte("alice"), []byte{2})
	require.NoError(t, err)
	assert.False(t, created)
	_, err = m.Set([]byte("bob"), []byte{3})
	require.NoError(t, err)

	n, err := m.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	entries, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", string(entries[0][0]))
	assert.Equal(t, []byte{2}, entries[0][1])

	removed, err := m.Remove([]byte("alice"))
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = m.Remove([]byte("alice"))
	require.NoError(t, err)
	assert.False(t, removed)

	n, _ = m.Count()
	assert.Equal(t, uint64(1), n)
	ok, _ := m.ContainsKey([]byte("bob"))
	assert.True(t, ok)
}

func TestStorageList(t *testing.T) {
	cs := NewChangeSet(NewMemoryStore())
	l := NewStorageList(cs, []byte("events"))

	for i, v := range []string{"x", "y", "z"} {
		idx, err := l.Add([]byte(v))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), idx)
	}
	require.NoError(t, l.Replace(1, []byte("Y")))

	all, err := l.All()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("x"), []byte("Y"), []byte("z")}, all)

	_, err = l.Get(3)
	assert.True(t, errors.Is(err, vmerrors.ErrNotFound))
	assert.ErrorIs(t, l.Replace(7, nil), vmerrors.ErrNotFound)
}

func TestStorageSet(t *testing.T) {
	cs := NewChangeSet(NewMemoryStore())
	s := NewStorageSet(cs, []byte("deposits"))

	added, err := s.Add([]byte("h1"))
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.Add([]byte("h1"))
	require.NoError(t, err)
	assert.False(t, added)

	ok, err := s.Contains([]byte("h1"))
	require.NoError(t, err)
	assert.True(t, ok)
	n, _ := s.Count()
	assert.Equal(t, uint64(1), n)
}

func TestStorageSetConcurrentAdds(t *testing.T) {
	cs := NewChangeSet(NewMemoryStore())
	s := NewStorageSet(cs, []byte("set"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Add([]byte("same"))
		}()
	}
	wg.Wait()

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}
