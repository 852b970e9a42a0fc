package historyitem

import (
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/qmuntal/stateless"
)

var ErrEditorClosed = goerr.New("editor is not open")

const (
	stateClosed = "closed"
	stateOpen   = "open"

	triggerOpen  = "open"
	triggerClose = "close"
)

// Selector is the part of the orchestrator an item talks to
type Selector interface {
	SetActiveEntry(id model.EntryID) (bool, error)
	IsActive(id model.EntryID) bool
	AppendToPrompt(id model.EntryID, content string)
}

// Item renders one history entry and edits its artifact source
type Item struct {
	entry    model.HistoryEntry
	api      adapter.API
	selector Selector

	mu      sync.Mutex
	editor  *stateless.StateMachine
	content string
}

// New creates an Item for entry. selector may be nil when the item is shown
// without an orchestrator; the apply-to-prompt toggle is then unavailable.
func New(entry *model.HistoryEntry, api adapter.API, selector Selector) *Item {
	editor := stateless.NewStateMachine(stateClosed)
	editor.Configure(stateClosed).
		Permit(triggerOpen, stateOpen).
		Ignore(triggerClose)
	editor.Configure(stateOpen).
		Permit(triggerClose, stateClosed).
		PermitReentry(triggerOpen)

	return &Item{
		entry:    *entry,
		api:      api,
		selector: selector,
		editor:   editor,
	}
}

// Entry returns a copy of the underlying entry
func (x *Item) Entry() model.HistoryEntry {
	return x.entry
}

// DisplayText returns "Convert: {unit1} to {unit2}" or "Prompt: {prompt}"
func (x *Item) DisplayText() string {
	return x.entry.DisplayText()
}

// Link returns the client-side route of the generated page under pageBase
func (x *Item) Link(pageBase string) string {
	return strings.TrimRight(pageBase, "/") + "/" + strings.TrimLeft(x.entry.PageLink, "/")
}

// State returns EditorClosed or EditorOpen with the current buffer
func (x *Item) State() model.EditorState {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.editor.MustState() == stateOpen {
		return model.EditorOpen{Content: x.content}
	}
	return model.EditorClosed{}
}

// OpenEditor opens the editor and loads the artifact source. When the fetch
// fails the editor stays open with empty content and the error is returned.
func (x *Item) OpenEditor(ctx context.Context) (string, error) {
	x.mu.Lock()
	if err := x.editor.Fire(triggerOpen); err != nil {
		x.mu.Unlock()
		return "", goerr.Wrap(err, "failed to open editor")
	}
	x.content = ""
	x.mu.Unlock()

	content, err := x.api.GetFileContent(ctx, x.entry.PageLink)
	if err != nil {
		logging.ExternalCallFailed(ctx, "get_file_content", err)
		return "", goerr.Wrap(err, "failed to fetch file content", goerr.V("page_link", x.entry.PageLink))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	// a close that raced the fetch wins
	if x.editor.MustState() != stateOpen {
		return content, nil
	}
	x.content = content
	return content, nil
}

// Edit replaces the editor buffer
func (x *Item) Edit(content string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.editor.MustState() != stateOpen {
		return ErrEditorClosed
	}
	x.content = content
	return nil
}

// Save sends the editor buffer to the service. The history entry itself is
// never modified. When the item is active the text is also pushed to the
// orchestrator for the next prompt.
func (x *Item) Save(ctx context.Context) error {
	x.mu.Lock()
	if x.editor.MustState() != stateOpen {
		x.mu.Unlock()
		return ErrEditorClosed
	}
	content := x.content
	x.mu.Unlock()

	if err := x.api.SaveFileContent(ctx, x.entry.PageLink, content); err != nil {
		logging.ExternalCallFailed(ctx, "save_file_content", err)
		return goerr.Wrap(err, "failed to save file content", goerr.V("page_link", x.entry.PageLink))
	}

	logging.From(ctx).Info("file saved", "page_link", x.entry.PageLink)
	x.pushIfActive(content)
	return nil
}

// CloseEditor closes the editor, pushing the buffer up when the item is active
func (x *Item) CloseEditor() {
	x.mu.Lock()
	wasOpen := x.editor.MustState() == stateOpen
	content := x.content
	_ = x.editor.Fire(triggerClose)
	x.content = ""
	x.mu.Unlock()

	if wasOpen {
		x.pushIfActive(content)
	}
}

// ToggleActive marks or unmarks this entry as the one folded into the next prompt
func (x *Item) ToggleActive() (bool, error) {
	if x.selector == nil {
		return false, goerr.New("item is not attached to an orchestrator")
	}
	return x.selector.SetActiveEntry(x.entry.ID)
}

// IsActive reports whether this entry is the orchestrator's active entry
func (x *Item) IsActive() bool {
	return x.selector != nil && x.selector.IsActive(x.entry.ID)
}

func (x *Item) pushIfActive(content string) {
	if x.IsActive() {
		x.selector.AppendToPrompt(x.entry.ID, content)
	}
}
