package blob

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is a process-local Store. It backs tests and the zero-config demo mode.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*Object
	clock   Version
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]*Object)}
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *Memory) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	return &Object{Key: key, Data: data, Version: obj.Version}, nil
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, cond Precondition) (Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var current Version
	if obj, ok := m.objects[key]; ok {
		current = obj.Version
	}
	if err := cond.check(current); err != nil {
		return 0, err
	}

	m.clock++
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = &Object{Key: key, Data: stored, Version: m.clock}
	return m.clock, nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes a key. It exists for tests that simulate partial state.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

var _ Store = (*Memory)(nil)
