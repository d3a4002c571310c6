package core

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// keydirEntry is the in-memory location of a key's most recent value.
type keydirEntry struct {
	fileID    uint64
	valuePos  int64
	valueSize int64
	timestamp uint64
}

// keydir is the in-memory index from key to its latest on-disk location,
// partitioned into shards so concurrent Gets don't contend with each other.
// A single handle still serializes writers (§10.4), and a write excludes
// reads on the handle while it runs; the sharding splits the index's own
// locking so concurrent reads take separate shard locks.
type keydir struct {
	shards []keydirShard
	mask   uint64
}

type keydirShard struct {
	mu      sync.RWMutex
	entries map[string]keydirEntry
}

// newKeydir builds a keydir with n shards, rounded up to the next power of
// two so shard selection is a mask instead of a modulo.
func newKeydir(n int) *keydir {
	if n < 1 {
		n = 1
	}
	size := 1
	for size < n {
		size <<= 1
	}
	kd := &keydir{
		shards: make([]keydirShard, size),
		mask:   uint64(size - 1),
	}
	for i := range kd.shards {
		kd.shards[i].entries = make(map[string]keydirEntry)
	}
	return kd
}

func (kd *keydir) shardFor(key string) *keydirShard {
	h := xxh3.HashString(key)
	return &kd.shards[h&kd.mask]
}

func (kd *keydir) get(key string) (keydirEntry, bool) {
	s := kd.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (kd *keydir) set(key string, e keydirEntry) {
	s := kd.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}

func (kd *keydir) delete(key string) {
	s := kd.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// len returns the total number of live keys across all shards.
func (kd *keydir) len() int {
	total := 0
	for i := range kd.shards {
		kd.shards[i].mu.RLock()
		total += len(kd.shards[i].entries)
		kd.shards[i].mu.RUnlock()
	}
	return total
}

// keys returns a snapshot of all live keys. Ordering is unspecified.
func (kd *keydir) keys() [][]byte {
	out := make([][]byte, 0, kd.len())
	for i := range kd.shards {
		kd.shards[i].mu.RLock()
		for k := range kd.shards[i].entries {
			out = append(out, []byte(k))
		}
		kd.shards[i].mu.RUnlock()
	}
	return out
}

// replaceAll atomically (from the perspective of any single shard) replaces
// the keydir's contents with m. Used by merge to adopt its condensed index.
func (kd *keydir) replaceAll(m map[string]keydirEntry) {
	grouped := make([]map[string]keydirEntry, len(kd.shards))
	for i := range grouped {
		grouped[i] = make(map[string]keydirEntry)
	}
	for k, e := range m {
		h := xxh3.HashString(k)
		idx := h & kd.mask
		grouped[idx][k] = e
	}
	for i := range kd.shards {
		kd.shards[i].mu.Lock()
		kd.shards[i].entries = grouped[i]
		kd.shards[i].mu.Unlock()
	}
}
