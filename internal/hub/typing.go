package hub

import (
	"sync"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/model"
)

const DefaultTypingTimeout = 3 * time.Second

// Timer is the part of *time.Timer the typing tracker needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type typingKey struct {
	userID         string
	conversationID string
}

type typingSession struct {
	receiverID string
	timer      Timer
	gen        uint64
}

// TypingTracker holds at most one armed session per (user, conversation).
// Every transition goes through arm or disarm; a timer whose generation no
// longer matches the stored session is stale and never emits.
type TypingTracker struct {
	mu        sync.Mutex
	sessions  map[typingKey]*typingSession
	gen       uint64
	timeout   time.Duration
	afterFunc AfterFunc
	emit      func(receiverID string, ev model.UserTypingEvent)
}

func NewTypingTracker(timeout time.Duration, afterFunc AfterFunc, emit func(string, model.UserTypingEvent)) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &TypingTracker{
		sessions:  make(map[typingKey]*typingSession),
		timeout:   timeout,
		afterFunc: afterFunc,
		emit:      emit,
	}
}

// Start arms (or re-arms) the session and tells the receiver the user is typing.
func (t *TypingTracker) Start(userID, conversationID, receiverID string) {
	t.mu.Lock()
	t.arm(typingKey{userID, conversationID}, receiverID)
	t.mu.Unlock()

	t.emit(receiverID, model.UserTypingEvent{ConversationID: conversationID, UserID: userID, IsTyping: true})
}

// Stop disarms the session, if any, and tells the receiver typing ended.
func (t *TypingTracker) Stop(userID, conversationID, receiverID string) {
	t.mu.Lock()
	s := t.disarm(typingKey{userID, conversationID})
	t.mu.Unlock()

	if s != nil && receiverID == "" {
		receiverID = s.receiverID
	}
	if receiverID == "" {
		return
	}
	t.emit(receiverID, model.UserTypingEvent{ConversationID: conversationID, UserID: userID, IsTyping: false})
}

// CancelUser disarms every session userID owns, emitting a stop for each.
func (t *TypingTracker) CancelUser(userID string) {
	type stopped struct {
		conversationID string
		receiverID     string
	}

	t.mu.Lock()
	var out []stopped
	for k := range t.sessions {
		if k.userID != userID {
			continue
		}
		s := t.disarm(k)
		out = append(out, stopped{k.conversationID, s.receiverID})
	}
	t.mu.Unlock()

	for _, s := range out {
		t.emit(s.receiverID, model.UserTypingEvent{ConversationID: s.conversationID, UserID: userID, IsTyping: false})
	}
}

// StopAll disarms every session without emitting.
func (t *TypingTracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.sessions {
		t.disarm(k)
	}
}

// Sessions returns a snapshot of the armed sessions.
func (t *TypingTracker) Sessions() []model.TypingSessionInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.TypingSessionInfo, 0, len(t.sessions))
	for k, s := range t.sessions {
		out = append(out, model.TypingSessionInfo{
			UserID:         k.userID,
			ConversationID: k.conversationID,
			ReceiverID:     s.receiverID,
		})
	}
	return out
}

// arm must be called with t.mu held.
func (t *TypingTracker) arm(k typingKey, receiverID string) {
	if prev, ok := t.sessions[k]; ok {
		prev.timer.Stop()
	}
	t.gen++
	gen := t.gen
	s := &typingSession{receiverID: receiverID, gen: gen}
	s.timer = t.afterFunc(t.timeout, func() { t.expire(k, gen) })
	t.sessions[k] = s
}

// disarm must be called with t.mu held.
func (t *TypingTracker) disarm(k typingKey) *typingSession {
	s, ok := t.sessions[k]
	if !ok {
		return nil
	}
	s.timer.Stop()
	delete(t.sessions, k)
	return s
}

func (t *TypingTracker) expire(k typingKey, gen uint64) {
	t.mu.Lock()
	s, ok := t.sessions[k]
	if !ok || s.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.sessions, k)
	t.mu.Unlock()

	t.emit(s.receiverID, model.UserTypingEvent{ConversationID: k.conversationID, UserID: k.userID, IsTyping: false})
}
