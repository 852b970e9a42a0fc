package model

// EditorState is either EditorClosed or EditorOpen
type EditorState interface {
	editorState()
}

// EditorClosed means no artifact source is being edited
type EditorClosed struct{}

// EditorOpen holds the artifact source currently being edited
type EditorOpen struct {
	Content string
}

func (EditorClosed) editorState() {}
func (EditorOpen) editorState()   {}
