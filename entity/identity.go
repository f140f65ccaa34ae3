package entity

// WidgetUser is the caller-supplied identity from the embedding site.
// Every field is optional; a missing or placeholder id is replaced by a
// generated guest id before any request leaves the widget.
type WidgetUser struct {
	ID         string         `json:"id,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Email      string         `json:"email,omitempty" validate:"omitempty,email"`
	Name       string         `json:"name,omitempty"`
	FullName   string         `json:"full_name,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// GuestIdentity is the finalized identity attached to chat-start requests.
type GuestIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}
