package widget

import "supportwidget/entity"

// View is the current presentation state of the widget.
type View string

const (
	ViewButton      View = "button"
	ViewCategories  View = "categories"
	ViewAutoAnswer  View = "auto-answer"
	ViewChatLoading View = "chat-loading"
	ViewChat        View = "chat"
	// ViewChatEnded is the terminal chat sub-state: input disabled, ended
	// banner shown. Only the realtime chat:closed event enters it.
	ViewChatEnded View = "chat-ended"
	ViewError     View = "error"
)

// Snapshot is the complete render input. The renderer is a deterministic
// projection of a snapshot to presentation and holds no state of its own.
type Snapshot struct {
	View     View
	Position string

	CategoriesLoading bool
	Categories        []entity.Category
	SelectedCategory  entity.Category

	Messages    []entity.Message
	AgentName   string
	AgentTyping bool

	ErrorText string
}

// Renderer projects a snapshot to the host surface. It is called from the
// widget's event loop after every state mutation and must not call back
// into the app synchronously.
type Renderer interface {
	Render(Snapshot)
}
