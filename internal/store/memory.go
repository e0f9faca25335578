package store

import (
	"container/list"
	"context"
	"sync"
)

const defaultMemoryMaxSize = 10000

type memoryEntry struct {
	id      string
	rec     Record
	element *list.Element
}

// Memory is a process-local Store bounded to maxSize records. The least
// recently written record is evicted first.
type Memory struct {
	lock    sync.Mutex
	entries map[string]*memoryEntry
	order   *list.List // oldest at Front, newest at Back
	maxSize int
}

func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = defaultMemoryMaxSize
	}
	return &Memory{
		entries: make(map[string]*memoryEntry),
		order:   list.New(),
		maxSize: maxSize,
	}
}

func memoryID(table, key string) string {
	return table + "\x00" + key
}

func (m *Memory) Upsert(ctx context.Context, table, key string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.Payload = append([]byte(nil), rec.Payload...)

	m.lock.Lock()
	defer m.lock.Unlock()
	id := memoryID(table, key)
	if entry, exists := m.entries[id]; exists {
		entry.rec = rec
		m.order.MoveToBack(entry.element)
		return nil
	}
	entry := &memoryEntry{id: id, rec: rec}
	entry.element = m.order.PushBack(entry)
	m.entries[id] = entry
	for len(m.entries) > m.maxSize {
		oldest := m.order.Front()
		oldestEntry := oldest.Value.(*memoryEntry)
		delete(m.entries, oldestEntry.id)
		m.order.Remove(oldest)
	}
	return nil
}

func (m *Memory) SelectByKey(ctx context.Context, table, key string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	entry, exists := m.entries[memoryID(table, key)]
	if !exists {
		return Record{}, false, nil
	}
	rec := entry.rec
	rec.Payload = append([]byte(nil), rec.Payload...)
	return rec, true, nil
}

// Len is the number of stored records.
func (m *Memory) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.entries)
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }
