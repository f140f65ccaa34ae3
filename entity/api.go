package entity

// Agent availability reported by the chat-start endpoint.
const AgentStatusNoAgents = "no_agents"

type CategoriesResponse struct {
	Categories []Category `json:"categories"`
}

type ChatStartRequest struct {
	Username   string     `json:"username" validate:"required"`
	SiteOrigin string     `json:"site_origin"`
	CategoryID string     `json:"category_id" validate:"required"`
	DeviceHash string     `json:"device_hash"`
	User       WidgetUser `json:"user"`
}

type ChatStartResponse struct {
	ThreadID    string `json:"thread_id"`
	WSToken     string `json:"ws_token"`
	AgentStatus string `json:"agent_status"`
	// Message carries server-provided text shown when no agents are online.
	Message string `json:"message,omitempty"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

type PostMessageRequest struct {
	Content   string    `json:"content"`
	MediaURL  string    `json:"media_url,omitempty"`
	MediaType MediaType `json:"media_type,omitempty"`
}

type UploadResponse struct {
	URL       string    `json:"url,omitempty"`
	MediaType MediaType `json:"media_type,omitempty"`
	Error     string    `json:"error,omitempty"`
}
