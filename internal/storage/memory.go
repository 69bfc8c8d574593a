package storage

import (
	"context"
	"sort"
	"sync"
)

// Object is a stored object in a Memory store.
type Object struct {
	Data        []byte
	ContentType string
}

// Memory is an in-process ObjectStore for local runs and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string]Object
	puts    int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.objects[key] = Object{Data: cp, ContentType: contentType}
	m.puts++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

// Get returns the object stored under key.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o, ok
}

// Keys lists stored keys in lexical order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Puts counts Put calls, including overwrites.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
