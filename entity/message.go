package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderSystem   SenderType = "system"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaVoice MediaType = "voice"
)

// Id prefixes for locally minted messages. Server ids never carry them.
const (
	TempIDPrefix  = "temp-"
	ErrIDPrefix   = "err-"
	CloseIDPrefix = "system-close-"
)

// Message is a single conversation entry. Optimistic messages carry a
// TempIDPrefix id until the authoritative copy arrives over the realtime
// channel; the server value then supersedes id and created_at.
type Message struct {
	ID         string     `json:"id"`
	ThreadID   string     `json:"thread_id"`
	SenderType SenderType `json:"sender_type"`
	Content    string     `json:"content"`
	MediaURL   string     `json:"media_url,omitempty"`
	MediaType  MediaType  `json:"media_type,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	// IsSeen is presentation state for customer messages, never sent to the server.
	IsSeen bool `json:"is_seen,omitempty"`
}

// IsOptimistic reports whether the message is a local echo awaiting
// server confirmation.
func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// NewOptimistic creates the local echo for a customer send.
func NewOptimistic(threadID, content string) Message {
	return Message{
		ID:         TempIDPrefix + uuid.NewString(),
		ThreadID:   threadID,
		SenderType: SenderCustomer,
		Content:    content,
		CreatedAt:  time.Now(),
	}
}

// NewSystem creates a system message with the given id. System messages
// minted locally (upload errors, chat-ended banners) are permanent and are
// never reconciled away.
func NewSystem(id, threadID, content string) Message {
	return Message{
		ID:         id,
		ThreadID:   threadID,
		SenderType: SenderSystem,
		Content:    content,
		CreatedAt:  time.Now(),
	}
}
