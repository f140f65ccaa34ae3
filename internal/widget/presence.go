package widget

import (
	"sync"
	"time"
)

type presenceKind string

const (
	presenceSeen   presenceKind = "seen"
	presenceTyping presenceKind = "typing"
)

// Presence pacing after a successful send: the seen mark, then the typing
// indicator a beat later.
const (
	seenDelay   = 2 * time.Second
	typingDelay = 3 * time.Second
)

// simulator schedules the cosmetic seen/typing updates that bridge the gap
// until a real agent replies. Tasks are keyed by thread id and cancellable,
// so switching sessions never lets a stale timer fire against the new
// thread. It has no effect on message delivery.
type simulator struct {
	emit func(evPresence)

	mu          sync.Mutex
	threadID    string
	seenTimer   *time.Timer
	typingTimer *time.Timer
}

func newSimulator(emit func(evPresence)) *simulator {
	return &simulator{emit: emit}
}

// Trigger arms the seen and typing timers for the given thread, replacing
// any pending ones. Called after each acknowledged send.
func (s *simulator) Trigger(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.threadID = threadID

	s.seenTimer = time.AfterFunc(seenDelay, func() {
		s.emit(evPresence{threadID: threadID, kind: presenceSeen})
	})
	s.typingTimer = time.AfterFunc(typingDelay, func() {
		s.emit(evPresence{threadID: threadID, kind: presenceTyping})
	})
}

// Cancel stops any pending tasks. Called on session switch, close and when
// a real agent event supersedes the simulation.
func (s *simulator) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.threadID = ""
}

func (s *simulator) stopLocked() {
	if s.seenTimer != nil {
		s.seenTimer.Stop()
		s.seenTimer = nil
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
}
