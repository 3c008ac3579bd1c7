package cache

import (
	"path"
	"sync"
	"time"
)

type entry struct {
	data      []byte
	tags      []string
	expiresAt time.Time // нулевое значение — без срока
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memoryTier — процессный уровень кэша, проверяется первым.
type memoryTier struct {
	mu       sync.RWMutex
	entries  map[string]entry
	tagIndex map[string]map[string]struct{}
}

func newMemoryTier() *memoryTier {
	return &memoryTier{
		entries:  make(map[string]entry),
		tagIndex: make(map[string]map[string]struct{}),
	}
}

func (m *memoryTier) get(key string, now time.Time) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || e.expired(now) {
		return nil, false
	}
	return e.data, true
}

func (m *memoryTier) set(key string, data []byte, tags []string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unindexLocked(key)
	m.entries[key] = entry{data: data, tags: tags, expiresAt: expiresAt}
	for _, t := range tags {
		keys, ok := m.tagIndex[t]
		if !ok {
			keys = make(map[string]struct{})
			m.tagIndex[t] = keys
		}
		keys[key] = struct{}{}
	}
}

func (m *memoryTier) delete(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.unindexLocked(k)
		delete(m.entries, k)
	}
}

func (m *memoryTier) deleteByPattern(pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if ok, err := path.Match(pattern, k); err == nil && ok {
			m.unindexLocked(k)
			delete(m.entries, k)
		}
	}
}

func (m *memoryTier) deleteByTags(tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tags {
		for k := range m.tagIndex[t] {
			m.unindexLocked(k)
			delete(m.entries, k)
		}
		delete(m.tagIndex, t)
	}
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
	m.tagIndex = make(map[string]map[string]struct{})
}

func (m *memoryTier) cleanExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			m.unindexLocked(k)
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

func (m *memoryTier) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// unindexLocked снимает ключ со всех его тегов; вызывать под write-lock.
func (m *memoryTier) unindexLocked(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	for _, t := range e.tags {
		if keys, ok := m.tagIndex[t]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.tagIndex, t)
			}
		}
	}
}
