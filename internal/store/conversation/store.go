package conversation

import (
	"log/slog"
	"sort"
	"sync"

	"supportwidget/entity"
	"supportwidget/internal/lib/sl"
)

// Store owns the active conversation session: thread identity, realtime
// token and the ordered message list. It is a pure state machine; network
// orchestration lives in the widget app, which is the only writer.
//
// List invariants, maintained by every mutation:
//   - sorted by created_at ascending, ties keep insertion order
//   - no two entries share the same non-temporary id
//   - stale events (foreign thread_id) never touch the list
type Store struct {
	log *slog.Logger

	mu       sync.RWMutex
	threadID string
	token    string
	messages []entity.Message
}

func NewStore(log *slog.Logger) *Store {
	return &Store{log: log.With(sl.Module("conversation store"))}
}

// StartSession replaces any prior session. The message list is cleared, not
// appended to: a new chat never inherits entries from the previous thread.
func (s *Store) StartSession(threadID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = threadID
	s.token = token
	s.messages = nil
}

// Clear drops the session entirely (back to button/categories view).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = ""
	s.token = ""
	s.messages = nil
}

func (s *Store) ThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadID
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Messages returns a copy of the current list in render order.
func (s *Store) Messages() []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// MergeHistory folds fetched history into the list: entries whose id is
// already present are dropped, the rest are appended, then the whole list is
// re-sorted by created_at. Safe to call with optimistic or realtime entries
// already in place; the merge is idempotent.
func (s *Store) MergeHistory(fetched []entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range fetched {
		if s.indexByID(msg.ID) >= 0 {
			continue
		}
		s.messages = append(s.messages, msg)
	}

	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})

	s.log.Debug("history merged", slog.Int("total", len(s.messages)))
}

// AppendOptimistic adds the local echo for a send and returns it. The entry
// stays until a realtime event reconciles it or the session ends.
func (s *Store) AppendOptimistic(content string) entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := entity.NewOptimistic(s.threadID, content)
	s.messages = append(s.messages, msg)
	return msg
}

// ReceiveRealtime applies a pushed message. Events for a foreign thread are
// dropped silently. Reconciliation order: replace the first optimistic entry
// with matching sender and content in place, else ignore a duplicate id,
// else append. Returns false when the event was dropped as stale.
func (s *Store) ReceiveRealtime(msg entity.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.threadID == "" || msg.ThreadID != s.threadID {
		return false
	}

	for i, m := range s.messages {
		if m.IsOptimistic() && m.SenderType == msg.SenderType && m.Content == msg.Content {
			s.messages[i] = msg
			return true
		}
	}

	if s.indexByID(msg.ID) >= 0 {
		return true // duplicate delivery
	}

	s.messages = append(s.messages, msg)
	return true
}

// AppendSystem adds a locally minted permanent system message (upload
// failures, chat-ended banner, no-agents notice).
func (s *Store) AppendSystem(msg entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// RemoveMessage deletes the entry with the given id, if present. Used to
// retire upload placeholders.
func (s *Store) RemoveMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexByID(id); i >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
	}
}

// MarkLastCustomerSeen flags the most recent customer message as seen.
// Returns false when there is nothing to mark or it is already seen.
func (s *Store) MarkLastCustomerSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].SenderType != entity.SenderCustomer {
			continue
		}
		if s.messages[i].IsSeen {
			return false
		}
		s.messages[i].IsSeen = true
		return true
	}
	return false
}

// caller holds the lock
func (s *Store) indexByID(id string) int {
	for i, m := range s.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}
