package cli

import (
	"strconv"
	"strings"

	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// resolveEntry finds an entry by 1-based list position, full ID or unique ID prefix
func resolveEntry(history []*model.HistoryEntry, ref string) (*model.HistoryEntry, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, goerr.New("entry reference is required")
	}

	if n, err := strconv.Atoi(ref); err == nil && len(ref) < 8 {
		if n < 1 || n > len(history) {
			return nil, goerr.Wrap(model.ErrEntryNotFound, "index out of range",
				goerr.V("index", n), goerr.V("size", len(history)))
		}
		return history[n-1], nil
	}

	var found *model.HistoryEntry
	for _, e := range history {
		if e.ID == model.EntryID(ref) {
			return e, nil
		}
		if strings.HasPrefix(string(e.ID), ref) {
			if found != nil {
				return nil, goerr.New("ambiguous entry reference", goerr.V("ref", ref))
			}
			found = e
		}
	}
	if found == nil {
		return nil, goerr.Wrap(model.ErrEntryNotFound, "no entry matches", goerr.V("ref", ref))
	}
	return found, nil
}
