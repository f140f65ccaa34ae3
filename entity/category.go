package entity

// Category is a support topic. Immutable once fetched; a non-empty
// AutoAnswer short-circuits the chat flow with a canned reply.
type Category struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AutoAnswer  string `json:"auto_answer,omitempty"`
}
