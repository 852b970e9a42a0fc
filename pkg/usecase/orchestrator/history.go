package orchestrator

import (
	"context"

	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ClearHistory empties the list and the store, then notifies the service.
// A failed notification is logged and never rolls the local clear back.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	o.mu.Lock()
	o.history = []*model.HistoryEntry{}
	o.active = nil
	o.pushed = nil
	storeErr := o.store.Clear(ctx)
	o.mu.Unlock()

	if err := o.api.ClearHistory(ctx); err != nil {
		logging.ExternalCallFailed(ctx, "clear_history", err)
	}

	if storeErr != nil {
		return goerr.Wrap(storeErr, "failed to clear history store")
	}
	return nil
}

// SetActiveEntry toggles id as the entry folded into the next prompt.
// Selecting the active entry again clears the marker. Returns whether id is
// active afterwards.
func (o *Orchestrator) SetActiveEntry(id model.EntryID) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.mode != model.ModePrompt {
		return false, ErrActiveDisabled
	}
	if _, err := model.FindEntry(o.history, id); err != nil {
		return false, err
	}

	if o.active != nil && *o.active == id {
		o.active = nil
		o.pushed = nil
		return false, nil
	}

	o.active = &id
	if o.pushed != nil && o.pushed.id != id {
		o.pushed = nil
	}
	return true, nil
}

// Active returns the active entry ID, if any
func (o *Orchestrator) Active() (model.EntryID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil {
		return "", false
	}
	return *o.active, true
}

// IsActive reports whether id is the active entry
func (o *Orchestrator) IsActive(id model.EntryID) bool {
	active, ok := o.Active()
	return ok && active == id
}

// ClearActive drops the active marker and any text pushed for it
func (o *Orchestrator) ClearActive() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = nil
	o.pushed = nil
}

// AppendToPrompt records editor text for id to fold into the next prompt.
// Ignored unless id is the active entry.
func (o *Orchestrator) AppendToPrompt(id model.EntryID, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil || *o.active != id {
		return
	}
	o.pushed = &pushedContent{id: id, content: content}
}
