package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/convgen/pkg/model"
)

// Memory keeps history in process memory. Used for tests and --store=memory.
type Memory struct {
	mu      sync.Mutex
	entries []*model.HistoryEntry
}

func NewMemory(entries ...*model.HistoryEntry) *Memory {
	m := &Memory{entries: cloneEntries(entries)}
	model.SortHistory(m.entries)
	return m
}

func (m *Memory) Load(ctx context.Context) ([]*model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneEntries(m.entries), nil
}

func (m *Memory) Save(ctx context.Context, entries []*model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = cloneEntries(entries)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}
