package cas

import (
	"sort"
	"sync"

	"github.com/dgryski/go-farm"
)

// MemoryCAS is an in-process content-addressable store backed by a map.
// Grounded on the teacher's cas.MemoryCAS, with the interp.State special
// case removed: every Hashable is stored the same way, via a typed,
// farm-hashed byte encoding, since eventstructure's Event and
// ExecutionFrontier values have no nested-reference decomposition to
// special-case the way a recursive interpreter State did.
type MemoryCAS struct {
	mu sync.RWMutex

	data map[Hash][]byte

	// weakStateDepths tracks the iteration depths at which a given
	// "weak" (partially-normalized) hash was seen, letting the
	// obstruction-freedom livelock detector in package consistency report
	// how long a hash has been recurring without new progress.
	weakStateDepths map[Hash][]int
}

// NewMemoryCAS returns an empty in-memory store.
func NewMemoryCAS() *MemoryCAS {
	return &MemoryCAS{
		data:            make(map[Hash][]byte),
		weakStateDepths: make(map[Hash][]int),
	}
}

func (m *MemoryCAS) getValue(h Hash) (bool, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[h]
	if !ok {
		return false, nil, nil
	}
	return true, v, nil
}

// Has reports whether hash is already stored.
func (m *MemoryCAS) Has(hash Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[hash]
	return ok
}

// Put stores item, returning the Hash of its encoded content. Storing
// an item a second time returns the same Hash without re-writing.
func (m *MemoryCAS) Put(item Hashable) (Hash, error) {
	data, err := encodeTypedEntry(item)
	if err != nil {
		return 0, err
	}
	h := Hash(farm.Hash64(data))

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[h]; !ok {
		m.data[h] = data
	}
	return h, nil
}

// Get reconstructs the Hashable stored under hash.
func (m *MemoryCAS) Get(hash Hash) (Hashable, error) {
	m.mu.RLock()
	data, ok := m.data[hash]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeTypedEntry(data)
}

// RecordWeakStateDepth records that a weak state hash was seen at depth.
func (m *MemoryCAS) RecordWeakStateDepth(weakHash Hash, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weakStateDepths[weakHash] = append(m.weakStateDepths[weakHash], depth)
	sort.Ints(m.weakStateDepths[weakHash])
}

// GetWeakStateDepths returns all depths where weakHash was seen.
func (m *MemoryCAS) GetWeakStateDepths(weakHash Hash) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	depths := m.weakStateDepths[weakHash]
	result := make([]int, len(depths))
	copy(result, depths)
	return result
}
