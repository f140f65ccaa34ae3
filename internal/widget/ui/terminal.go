package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"supportwidget/entity"
	"supportwidget/internal/widget"
)

// TerminalRenderer projects widget snapshots to a text surface. It is the
// demo host's stand-in for the browser DOM: every render repaints the whole
// panel from the snapshot alone.
type TerminalRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminalRenderer(out io.Writer) *TerminalRenderer {
	return &TerminalRenderer{out: out}
}

func (r *TerminalRenderer) Render(s widget.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.WriteString("\n" + strings.Repeat("-", 44) + "\n")

	switch s.View {
	case widget.ViewButton:
		b.WriteString("[ chat bubble ]  (open to start)\n")

	case widget.ViewCategories:
		b.WriteString("Support Center — select a help topic\n\n")
		if s.CategoriesLoading {
			b.WriteString("  loading...\n")
			break
		}
		if len(s.Categories) == 0 {
			b.WriteString("  No topics available\n")
			break
		}
		for i, c := range s.Categories {
			b.WriteString(fmt.Sprintf("  %d. %s", i+1, c.Title))
			if c.Description != "" {
				b.WriteString(" — " + c.Description)
			}
			b.WriteString("\n")
		}

	case widget.ViewAutoAnswer:
		b.WriteString(s.SelectedCategory.Title + "\n\n")
		b.WriteString("  " + s.SelectedCategory.AutoAnswer + "\n\n")
		b.WriteString("  [talk]  Talk to an Agent    [back]\n")

	case widget.ViewChatLoading:
		b.WriteString("Connecting...\n  please wait\n")

	case widget.ViewChat, widget.ViewChatEnded:
		title := s.SelectedCategory.Title
		if title == "" {
			title = "Chat"
		}
		status := "Connected"
		if s.AgentName != "" {
			status = s.AgentName + " connected"
		}
		if s.View == widget.ViewChatEnded {
			status = "Chat ended"
		}
		b.WriteString(fmt.Sprintf("%s  [%s]\n\n", title, status))

		for _, m := range s.Messages {
			b.WriteString("  " + formatMessage(m) + "\n")
		}
		if s.AgentTyping && s.View == widget.ViewChat {
			b.WriteString("  Agent is typing...\n")
		}
		if s.View == widget.ViewChatEnded {
			b.WriteString("\n  -- Chat ended --\n")
		} else {
			b.WriteString("\n  > type a message (send/attach/close)\n")
		}

	case widget.ViewError:
		b.WriteString("Error\n\n  " + s.ErrorText + "\n  [retry]\n")
	}

	fmt.Fprint(r.out, b.String())
}

func formatMessage(m entity.Message) string {
	prefix := "agent"
	switch m.SenderType {
	case entity.SenderCustomer:
		prefix = "you"
	case entity.SenderSystem:
		prefix = "*"
	}

	line := fmt.Sprintf("%s %s: %s", m.CreatedAt.Format("15:04"), prefix, m.Content)
	if m.MediaURL != "" {
		line += fmt.Sprintf(" [%s: %s]", m.MediaType, m.MediaURL)
	}
	if m.IsSeen {
		line += "  ✓✓ Seen"
	}
	return line
}
