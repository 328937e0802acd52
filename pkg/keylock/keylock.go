// Package keylock provides mutual exclusion scoped to a string key.
// Operations on different keys never contend on the same mutex.
package keylock

import (
	"hash/fnv"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type KeyLock struct {
	shards []*shard
}

func New(shards int) *KeyLock {
	if shards <= 0 {
		shards = 1
	}
	kl := &KeyLock{shards: make([]*shard, shards)}
	for i := range kl.shards {
		kl.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return kl
}

func (kl *KeyLock) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return kl.shards[h.Sum32()%uint32(len(kl.shards))]
}

// Lock blocks until key is held and returns the matching unlock func.
func (kl *KeyLock) Lock(key string) func() {
	s := kl.shardFor(key)

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

// Len reports how many keys are currently locked or awaited.
func (kl *KeyLock) Len() int {
	n := 0
	for _, s := range kl.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
