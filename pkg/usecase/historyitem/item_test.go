package historyitem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/usecase/historyitem"
	"github.com/m-mizutani/gt"
)

type mockAPI struct {
	adapter.API

	content  map[string]string
	fetchErr error
	saveErr  error
	saved    map[string]string
}

func newMockAPI() *mockAPI {
	return &mockAPI{content: map[string]string{}, saved: map[string]string{}}
}

func (m *mockAPI) GetFileContent(ctx context.Context, pageLink string) (string, error) {
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	return m.content[pageLink], nil
}

func (m *mockAPI) SaveFileContent(ctx context.Context, pageLink, content string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[pageLink] = content
	return nil
}

type mockSelector struct {
	active model.EntryID
	pushed []string
}

func (m *mockSelector) SetActiveEntry(id model.EntryID) (bool, error) {
	if m.active == id {
		m.active = ""
		return false, nil
	}
	m.active = id
	return true, nil
}

func (m *mockSelector) IsActive(id model.EntryID) bool {
	return m.active == id
}

func (m *mockSelector) AppendToPrompt(id model.EntryID, content string) {
	m.pushed = append(m.pushed, content)
}

var entry123 = &model.HistoryEntry{
	ID:        "e1",
	Unit1:     "inches",
	Unit2:     "cm",
	PageLink:  "page123",
	Timestamp: 1000,
}

func TestDisplayAndLink(t *testing.T) {
	item := historyitem.New(entry123, newMockAPI(), nil)
	gt.Equal(t, item.DisplayText(), "Convert: inches to cm")
	gt.Equal(t, item.Link("http://localhost:3000/"), "http://localhost:3000/page123")
}

func TestEditorLifecycle(t *testing.T) {
	ctx := context.Background()
	api := newMockAPI()
	api.content["page123"] = "function f(){}"
	item := historyitem.New(entry123, api, nil)

	_, isClosed := item.State().(model.EditorClosed)
	gt.True(t, isClosed)

	content, err := item.OpenEditor(ctx)
	gt.NoError(t, err)
	gt.Equal(t, content, "function f(){}")

	open, ok := item.State().(model.EditorOpen)
	gt.True(t, ok)
	gt.Equal(t, open.Content, "function f(){}")

	gt.NoError(t, item.Edit("function f(){return 1;}"))
	gt.NoError(t, item.Save(ctx))
	gt.Equal(t, api.saved["page123"], "function f(){return 1;}")

	// the entry carries no content and is untouched by saving
	gt.Equal(t, item.Entry(), *entry123)

	item.CloseEditor()
	_, isClosed = item.State().(model.EditorClosed)
	gt.True(t, isClosed)

	// closing twice is harmless
	item.CloseEditor()
}

func TestEditAndSaveRequireOpenEditor(t *testing.T) {
	item := historyitem.New(entry123, newMockAPI(), nil)

	gt.True(t, errors.Is(item.Edit("x"), historyitem.ErrEditorClosed))
	gt.True(t, errors.Is(item.Save(context.Background()), historyitem.ErrEditorClosed))
}

func TestOpenEditorFetchFailure(t *testing.T) {
	api := newMockAPI()
	api.fetchErr = errors.New("404")
	item := historyitem.New(entry123, api, nil)

	_, err := item.OpenEditor(context.Background())
	gt.Error(t, err)

	open, ok := item.State().(model.EditorOpen)
	gt.True(t, ok)
	gt.Equal(t, open.Content, "")
}

func TestSaveFailureIsReported(t *testing.T) {
	ctx := context.Background()
	api := newMockAPI()
	api.saveErr = errors.New("500")
	sel := &mockSelector{active: "e1"}
	item := historyitem.New(entry123, api, sel)

	_, err := item.OpenEditor(ctx)
	gt.NoError(t, err)
	gt.Error(t, item.Save(ctx))
	gt.A(t, sel.pushed).Length(0)
}

func TestActiveItemPushesContent(t *testing.T) {
	ctx := context.Background()
	api := newMockAPI()
	api.content["page123"] = "original"
	sel := &mockSelector{}
	item := historyitem.New(entry123, api, sel)

	active, err := item.ToggleActive()
	gt.NoError(t, err)
	gt.True(t, active)
	gt.True(t, item.IsActive())

	_, err = item.OpenEditor(ctx)
	gt.NoError(t, err)
	gt.NoError(t, item.Edit("edited"))
	gt.NoError(t, item.Save(ctx))
	item.CloseEditor()

	gt.Equal(t, sel.pushed, []string{"edited", "edited"})

	active, err = item.ToggleActive()
	gt.NoError(t, err)
	gt.False(t, active)
	gt.False(t, item.IsActive())
}

func TestInactiveItemDoesNotPush(t *testing.T) {
	ctx := context.Background()
	sel := &mockSelector{active: "other"}
	item := historyitem.New(entry123, newMockAPI(), sel)

	_, err := item.OpenEditor(ctx)
	gt.NoError(t, err)
	item.CloseEditor()
	gt.A(t, sel.pushed).Length(0)
}

func TestToggleWithoutSelector(t *testing.T) {
	item := historyitem.New(entry123, newMockAPI(), nil)
	_, err := item.ToggleActive()
	gt.Error(t, err)
	gt.False(t, item.IsActive())
}
