package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/event"
	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/repo/memory"
	"github.com/Md-KamranQutub/chatify/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeConn struct {
	id     string
	user   string
	mu     sync.Mutex
	events []event.WsEvent
	closed bool
}

func newFakeConn(id, user string) *fakeConn {
	return &fakeConn{id: id, user: user}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.user }

func (c *fakeConn) Send(ev event.WsEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// named returns the events called name, in order.
func (c *fakeConn) named(name string) []event.WsEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.WsEvent
	for _, ev := range c.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock hands out timers that only fire when told to.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) timer(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fire runs timer i's callback even if it was stopped, the way a timer that
// was already firing when Stop was called would.
func (c *fakeClock) fire(i int) {
	t := c.timer(i)
	t.fired = true
	t.f()
}

type fakeMessages struct {
	gotMessageID, gotUserID, gotEmoji string
	gotRead                           []string
	gotReader                         string
	err                               error
}

func (f *fakeMessages) MarkRead(_ context.Context, ids []string, readerID string) ([]model.Message, error) {
	f.gotRead, f.gotReader = ids, readerID
	if f.err != nil {
		return nil, f.err
	}
	return []model.Message{}, nil
}

func (f *fakeMessages) ToggleReaction(_ context.Context, messageID, userID, emoji string) ([]model.Reaction, error) {
	f.gotMessageID, f.gotUserID, f.gotEmoji = messageID, userID, emoji
	if f.err != nil {
		return nil, f.err
	}
	return []model.Reaction{{UserID: userID, Emoji: emoji}}, nil
}

func newTestHub(t *testing.T) (*Hub, *memory.UserStore, *fakeClock) {
	t.Helper()
	users := memory.NewUserStore()
	clock := &fakeClock{}
	h := NewHub(Options{
		Presence:  users,
		AfterFunc: clock.AfterFunc,
		Logger:    zaptest.NewLogger(t),
	})
	t.Cleanup(h.Stop)
	return h, users, clock
}

func decode[T any](t *testing.T, ev event.WsEvent) T {
	t.Helper()
	var v T
	require.NoError(t, ev.Decode(&v))
	return v
}

func mustEvent(t *testing.T, name string, payload any) event.WsEvent {
	t.Helper()
	ev, err := event.New(name, payload)
	require.NoError(t, err)
	return ev
}

// -----------------------------------------------------------------
// Registry and presence
// -----------------------------------------------------------------

func TestRegisterMarksOnlineAndBroadcasts(t *testing.T) {
	h, users, _ := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")

	h.Register(alice)
	h.Register(bob)

	assert.True(t, h.IsOnline("alice"))
	assert.True(t, h.IsOnline("bob"))

	p, err := users.GetPresence(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)

	statuses := alice.named(event.EventUserStatus)
	require.Len(t, statuses, 2, "alice sees her own and bob's arrival")
	got := decode[model.UserStatusEvent](t, statuses[1])
	assert.Equal(t, "bob", got.UserID)
	assert.True(t, got.IsOnline)
}

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	h, _, _ := newTestHub(t)
	old := newFakeConn("old", "alice")
	fresh := newFakeConn("new", "alice")

	h.Register(old)
	h.Register(fresh)

	assert.True(t, old.isClosed())
	c, ok := h.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "new", c.ID())
}

func TestUnregisterStaleHandleKeepsUserOnline(t *testing.T) {
	h, users, _ := newTestHub(t)
	old := newFakeConn("old", "alice")
	fresh := newFakeConn("new", "alice")
	watcher := newFakeConn("w", "bob")

	h.Register(watcher)
	h.Register(old)
	h.Register(fresh)
	watcher.reset()

	assert.False(t, h.Unregister(old))

	assert.True(t, h.IsOnline("alice"))
	assert.Empty(t, watcher.named(event.EventUserStatus))
	p, err := users.GetPresence(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
}

func TestUnregisterMarksOfflineWithLastSeen(t *testing.T) {
	h, users, _ := newTestHub(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return at }

	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	h.Register(alice)
	h.Register(bob)
	bob.reset()

	assert.True(t, h.Unregister(alice))
	assert.False(t, h.IsOnline("alice"))
	assert.True(t, alice.isClosed())

	p, err := users.GetPresence(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
	assert.True(t, p.LastSeen.Equal(at))

	statuses := bob.named(event.EventUserStatus)
	require.Len(t, statuses, 1)
	got := decode[model.UserStatusEvent](t, statuses[0])
	assert.Equal(t, "alice", got.UserID)
	assert.False(t, got.IsOnline)
	require.NotNil(t, got.LastSeen)
	assert.True(t, got.LastSeen.Equal(at))
}

func TestPresencePersistenceFailureIsNotFatal(t *testing.T) {
	h, users, _ := newTestHub(t)
	users.FailPresence = errors.New("store down")

	alice := newFakeConn("c1", "alice")
	h.Register(alice)

	assert.True(t, h.IsOnline("alice"))
	assert.Len(t, alice.named(event.EventUserStatus), 1)
}

func TestSendToUserAndBroadcast(t *testing.T) {
	h, _, _ := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	h.Register(alice)
	h.Register(bob)
	alice.reset()
	bob.reset()

	ev := mustEvent(t, event.EventNewUpdate, map[string]string{"id": "u1"})

	assert.False(t, h.SendToUser("carol", ev))
	assert.True(t, h.SendToUser("bob", ev))
	assert.Len(t, bob.named(event.EventNewUpdate), 1)

	assert.Equal(t, 1, h.Broadcast(ev, "bob"))
	assert.Len(t, alice.named(event.EventNewUpdate), 1)
	assert.Len(t, bob.named(event.EventNewUpdate), 1)
}

// -----------------------------------------------------------------
// Typing
// -----------------------------------------------------------------

func typingEvents(t *testing.T, c *fakeConn) []model.UserTypingEvent {
	t.Helper()
	var out []model.UserTypingEvent
	for _, ev := range c.named(event.EventUserTyping) {
		out = append(out, decode[model.UserTypingEvent](t, ev))
	}
	return out
}

func TestTypingExpiresAfterTimeout(t *testing.T) {
	h, _, clock := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	h.Register(alice)
	h.Register(bob)

	h.handleEvent(mustEvent(t, event.EventTypingStart, model.TypingPayload{ConversationID: "conv", ReceiverID: "bob"}), alice)

	require.Equal(t, 1, clock.count())
	assert.Equal(t, DefaultTypingTimeout, clock.timer(0).d)

	clock.fire(0)

	evs := typingEvents(t, bob)
	require.Len(t, evs, 2)
	assert.Equal(t, model.UserTypingEvent{ConversationID: "conv", UserID: "alice", IsTyping: true}, evs[0])
	assert.Equal(t, model.UserTypingEvent{ConversationID: "conv", UserID: "alice", IsTyping: false}, evs[1])
	assert.Empty(t, typingEvents(t, alice))
	assert.Empty(t, h.Typing().Sessions())
}

func TestTypingRestartReplacesTimer(t *testing.T) {
	h, _, clock := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	h.Register(alice)
	h.Register(bob)

	start := mustEvent(t, event.EventTypingStart, model.TypingPayload{ConversationID: "conv", ReceiverID: "bob"})
	h.handleEvent(start, alice)
	h.handleEvent(start, alice)

	require.Equal(t, 2, clock.count())
	assert.True(t, clock.timer(0).stopped, "first timer is cancelled by the restart")
	assert.Equal(t, DefaultTypingTimeout, clock.timer(1).d)

	// a superseded callback that slips through must not emit
	clock.fire(0)
	assert.Len(t, typingEvents(t, bob), 2)

	clock.fire(1)
	evs := typingEvents(t, bob)
	require.Len(t, evs, 3)
	assert.False(t, evs[2].IsTyping)

	stops := 0
	for _, ev := range evs {
		if !ev.IsTyping {
			stops++
		}
	}
	assert.Equal(t, 1, stops)
}

func TestTypingStopCancelsTimer(t *testing.T) {
	h, _, clock := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	h.Register(alice)
	h.Register(bob)

	payload := model.TypingPayload{ConversationID: "conv", ReceiverID: "bob"}
	h.handleEvent(mustEvent(t, event.EventTypingStart, payload), alice)
	h.handleEvent(mustEvent(t, event.EventTypingStop, payload), alice)

	assert.True(t, clock.timer(0).stopped)
	clock.fire(0)

	evs := typingEvents(t, bob)
	require.Len(t, evs, 2)
	assert.True(t, evs[0].IsTyping)
	assert.False(t, evs[1].IsTyping)
}

func TestDisconnectCancelsTyping(t *testing.T) {
	h, _, clock := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	h.Register(alice)
	h.Register(bob)

	h.handleEvent(mustEvent(t, event.EventTypingStart, model.TypingPayload{ConversationID: "conv", ReceiverID: "bob"}), alice)
	h.Unregister(alice)

	assert.True(t, clock.timer(0).stopped)
	evs := typingEvents(t, bob)
	require.Len(t, evs, 2)
	assert.False(t, evs[1].IsTyping)

	clock.fire(0)
	assert.Len(t, typingEvents(t, bob), 2)
}

func TestTypingSessionsAreIndependentPerConversation(t *testing.T) {
	h, _, clock := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	h.Register(alice)

	h.Typing().Start("alice", "conv-1", "bob")
	h.Typing().Start("alice", "conv-2", "carol")
	require.Len(t, h.Typing().Sessions(), 2)

	clock.fire(0)
	sessions := h.Typing().Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "conv-2", sessions[0].ConversationID)
}

// -----------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------

func TestUserConnectedMustMatchIdentity(t *testing.T) {
	h, _, _ := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	h.Register(alice)
	alice.reset()

	h.handleEvent(mustEvent(t, event.EventUserConnected, model.UserConnectedPayload{UserID: "mallory"}), alice)

	errs := alice.named(event.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, service.KindForbidden.String(), decode[model.ErrorPayload](t, errs[0]).Code)
	assert.False(t, h.IsOnline("mallory"))

	h.handleEvent(mustEvent(t, event.EventUserConnected, model.UserConnectedPayload{UserID: "alice"}), alice)
	assert.Len(t, alice.named(event.EventUserStatus), 1, "presence is re-announced")
}

func TestLateUserConnectedAfterDisconnectStaysOffline(t *testing.T) {
	h, users, _ := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	h.Register(alice)
	require.True(t, h.Unregister(alice))

	bob := newFakeConn("c2", "bob")
	h.Register(bob)
	bob.reset()

	// a frame read just before the socket dropped is handled after Unregister
	h.handleEvent(mustEvent(t, event.EventUserConnected, model.UserConnectedPayload{UserID: "alice"}), alice)

	assert.True(t, alice.isClosed())
	assert.False(t, h.IsOnline("alice"))
	_, ok := h.Lookup("alice")
	assert.False(t, ok)
	assert.Empty(t, bob.named(event.EventUserStatus))

	p, err := users.GetPresence(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
}

func TestLateUserConnectedFromReplacedConnectionKeepsLiveOne(t *testing.T) {
	h, _, _ := newTestHub(t)
	old := newFakeConn("c1", "alice")
	h.Register(old)
	live := newFakeConn("c2", "alice")
	h.Register(live)
	require.True(t, old.isClosed())
	live.reset()

	h.handleEvent(mustEvent(t, event.EventUserConnected, model.UserConnectedPayload{UserID: "alice"}), old)

	cur, ok := h.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, live, cur)
	assert.False(t, live.isClosed())
	assert.Empty(t, live.named(event.EventUserStatus))
}

func TestGetUserStatusReportsPersistedLastSeen(t *testing.T) {
	h, users, _ := newTestHub(t)
	seen := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, users.SetPresence(context.Background(), "bob", false, seen))

	alice := newFakeConn("c1", "alice")
	h.Register(alice)
	alice.reset()

	h.handleEvent(mustEvent(t, event.EventGetUserStatus, model.UserStatusRequest{UserID: "bob"}), alice)

	replies := alice.named(event.EventUserStatus)
	require.Len(t, replies, 1)
	got := decode[model.UserStatusEvent](t, replies[0])
	assert.Equal(t, "bob", got.UserID)
	assert.False(t, got.IsOnline)
	require.NotNil(t, got.LastSeen)
	assert.True(t, got.LastSeen.Equal(seen))
}

func TestAddReactionsActsAsConnectionOwner(t *testing.T) {
	h, _, _ := newTestHub(t)
	toggler := &fakeMessages{}
	h.SetMessageService(toggler)

	alice := newFakeConn("c1", "alice")
	h.Register(alice)

	h.handleEvent(mustEvent(t, event.EventAddReactions, model.AddReactionPayload{
		MessageID: "m1", Emoji: "👍", UserID: "mallory",
	}), alice)

	assert.Equal(t, "m1", toggler.gotMessageID)
	assert.Equal(t, "alice", toggler.gotUserID)
	assert.Equal(t, "👍", toggler.gotEmoji)
	assert.Empty(t, alice.named(event.EventError))
}

func TestAddReactionsReportsServiceErrors(t *testing.T) {
	h, _, _ := newTestHub(t)
	h.SetMessageService(&fakeMessages{err: &service.Error{Kind: service.KindNotFound, Message: "message not found"}})

	alice := newFakeConn("c1", "alice")
	h.Register(alice)

	h.handleEvent(mustEvent(t, event.EventAddReactions, model.AddReactionPayload{MessageID: "m1", Emoji: "👍"}), alice)

	errs := alice.named(event.EventError)
	require.Len(t, errs, 1)
	got := decode[model.ErrorPayload](t, errs[0])
	assert.Equal(t, "not_found", got.Code)
	assert.Equal(t, "message not found", got.Message)
}

func TestMessageReadMarksAsConnectionOwner(t *testing.T) {
	h, _, _ := newTestHub(t)
	svc := &fakeMessages{}
	h.SetMessageService(svc)

	bob := newFakeConn("c1", "bob")
	h.Register(bob)
	bob.reset()

	h.handleEvent(mustEvent(t, event.EventMessageRead, model.MessageReadPayload{MessageIDs: []string{"m1", "m2"}}), bob)

	assert.Equal(t, []string{"m1", "m2"}, svc.gotRead)
	assert.Equal(t, "bob", svc.gotReader)
	assert.Empty(t, bob.named(event.EventError))

	h.handleEvent(mustEvent(t, event.EventMessageRead, model.MessageReadPayload{}), bob)
	errs := bob.named(event.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "validation_error", decode[model.ErrorPayload](t, errs[0]).Code)

	svc.err = &service.Error{Kind: service.KindValidation, Message: "malformed message id: x"}
	h.handleEvent(mustEvent(t, event.EventMessageRead, model.MessageReadPayload{MessageIDs: []string{"x"}}), bob)
	errs = bob.named(event.EventError)
	require.Len(t, errs, 2)
	assert.Equal(t, "malformed message id: x", decode[model.ErrorPayload](t, errs[1]).Message)
}

func TestUnknownEventRepliesWithError(t *testing.T) {
	h, _, _ := newTestHub(t)
	alice := newFakeConn("c1", "alice")
	h.Register(alice)

	h.handleEvent(event.WsEvent{Event: "launch_rockets"}, alice)

	assert.Len(t, alice.named(event.EventError), 1)
}

func TestMonitorStats(t *testing.T) {
	h, _, _ := newTestHub(t)
	ms := NewMonitorService(h)

	assert.Equal(t, "idle", ms.GetStats().Status)

	h.Register(newFakeConn("c1", "alice"))
	h.Typing().Start("alice", "conv", "bob")

	stats := ms.GetStats()
	assert.Equal(t, "healthy", stats.Status)
	assert.Equal(t, 1, stats.Connections.TotalConnected)
	assert.Equal(t, 1, stats.Typing.ActiveSessions)
	require.Len(t, stats.Clients, 1)
	assert.Equal(t, "alice", stats.Clients[0].UserID)
}
