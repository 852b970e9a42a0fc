package repository

import (
	"context"

	"github.com/m-mizutani/convgen/pkg/model"
)

// HistoryKey is the fixed key the serialized history list is stored under
const HistoryKey = "history"

// HistoryStore persists the ordered history list
type HistoryStore interface {
	// Load returns every stored entry, newest first
	Load(ctx context.Context) ([]*model.HistoryEntry, error)

	// Save replaces the stored list with entries
	Save(ctx context.Context, entries []*model.HistoryEntry) error

	// Clear removes every stored entry
	Clear(ctx context.Context) error
}

// cloneEntries copies the list and its entries so callers cannot alias store state
func cloneEntries(entries []*model.HistoryEntry) []*model.HistoryEntry {
	out := make([]*model.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		c := *e
		out = append(out, &c)
	}
	return out
}
