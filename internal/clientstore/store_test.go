package clientstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Md-KamranQutub/chatify/internal/event"
	"github.com/Md-KamranQutub/chatify/internal/model"
)

type fakeTransport struct {
	mu sync.Mutex

	// gate, when set, blocks SendMessage until it receives a value.
	gate    chan struct{}
	sendErr error
	sent    []Draft
	marked  [][]string
	deleted []string
	convs   []model.ConversationView
	history map[string][]model.PopulatedMessage
	nextID  int
}

func (f *fakeTransport) SendMessage(_ context.Context, d Draft) (*model.PopulatedMessage, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, d)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	conv := d.ConversationID
	if conv == "" {
		conv = "c-new"
	}
	return &model.PopulatedMessage{Message: model.Message{
		ID:             fmt.Sprintf("m%d", f.nextID),
		ConversationID: conv,
		SenderID:       "me",
		ReceiverID:     d.ReceiverID,
		Content:        d.Content,
		MessageStatus:  model.MessageStatusSend,
	}}, nil
}

func (f *fakeTransport) MarkRead(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, ids)
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTransport) ListConversations(context.Context) ([]model.ConversationView, error) {
	return f.convs, nil
}

func (f *fakeTransport) FetchMessages(_ context.Context, id string) ([]model.PopulatedMessage, error) {
	return f.history[id], nil
}

func incoming(id, conv, from, to string) model.PopulatedMessage {
	return model.PopulatedMessage{
		Message: model.Message{
			ID: id, ConversationID: conv, SenderID: from, ReceiverID: to,
			Content: "hi", MessageStatus: model.MessageStatusDelivered,
		},
		Sender:   model.UserSummary{ID: from},
		Receiver: model.UserSummary{ID: to},
	}
}

func newTestStore(t *testing.T, tr *fakeTransport) *Store {
	t.Helper()
	s := New("me", tr, zaptest.NewLogger(t))
	var n int
	s.newTempID = func() string {
		n++
		return fmt.Sprintf("%s%d", tempIDPrefix, n)
	}
	return s
}

func keys(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key()
	}
	return out
}

func TestSendIsOptimisticThenConfirmedInPlace(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{})}
	s := newTestStore(t, tr)
	s.active = "c1"
	s.entries = []Entry{Confirmed{Message: incoming("m0", "c1", "bob", "me")}}

	done := make(chan Entry)
	go func() {
		e, err := s.Send(context.Background(), Draft{ConversationID: "c1", ReceiverID: "bob", Content: "hello"})
		assert.NoError(t, err)
		done <- e
	}()

	require.Eventually(t, func() bool {
		e, ok := s.Entry("temp-1")
		_, pending := e.(Pending)
		return ok && pending
	}, time.Second, 5*time.Millisecond)

	// a message arriving while the send is in flight lands after it
	s.Receive(context.Background(), incoming("m9", "c1", "bob", "me"))

	close(tr.gate)
	e := <-done

	confirmed, ok := e.(Confirmed)
	require.True(t, ok)
	assert.Equal(t, "m1", confirmed.Message.ID)
	assert.Equal(t, []string{"m0", "m1", "m9"}, keys(s.Messages("c1")))
	_, stillPending := s.Entry("temp-1")
	assert.False(t, stillPending)

	conv, ok := s.Conversation("c1")
	require.True(t, ok)
	assert.Equal(t, "m1", conv.LastMessage.ID)
}

func TestSendConfirmationAfterOpenKeepsOneCopy(t *testing.T) {
	mine := incoming("m1", "c1", "me", "bob")
	mine.MessageStatus = model.MessageStatusRead
	tr := &fakeTransport{
		gate:    make(chan struct{}),
		history: map[string][]model.PopulatedMessage{"c1": {mine}},
	}
	s := newTestStore(t, tr)

	done := make(chan Entry)
	go func() {
		e, err := s.Send(context.Background(), Draft{ConversationID: "c1", ReceiverID: "bob", Content: "hello"})
		assert.NoError(t, err)
		done <- e
	}()

	require.Eventually(t, func() bool {
		_, ok := s.Entry("temp-1")
		return ok
	}, time.Second, 5*time.Millisecond)

	// the fetch already carries the server copy of the in-flight message
	require.NoError(t, s.Open(context.Background(), "c1"))
	assert.Equal(t, []string{"temp-1", "m1"}, keys(s.Messages("c1")))

	close(tr.gate)
	e := <-done

	assert.Equal(t, []string{"m1"}, keys(s.Messages("c1")))
	confirmed, ok := e.(Confirmed)
	require.True(t, ok)
	assert.Equal(t, model.MessageStatusRead, confirmed.Message.MessageStatus, "fetched copy wins")
}

func TestSendConfirmationAfterPushKeepsOneCopy(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{})}
	s := newTestStore(t, tr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Send(context.Background(), Draft{ConversationID: "c1", ReceiverID: "bob", Content: "hello"})
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		_, ok := s.Entry("temp-1")
		return ok
	}, time.Second, 5*time.Millisecond)

	assert.True(t, s.Receive(context.Background(), incoming("m1", "c1", "me", "bob")))
	close(tr.gate)
	<-done

	assert.Equal(t, []string{"m1"}, keys(s.Messages("c1")))
}

func TestSendResolvesConversationByParticipant(t *testing.T) {
	tr := &fakeTransport{convs: []model.ConversationView{{
		ID:           "c7",
		Participants: []model.UserSummary{{ID: "me"}, {ID: "bob"}},
	}}}
	s := newTestStore(t, tr)
	require.NoError(t, s.LoadConversations(context.Background()))

	_, err := s.Send(context.Background(), Draft{ReceiverID: "bob", Content: "yo"})
	require.NoError(t, err)
	assert.Equal(t, "c7", tr.sent[0].ConversationID)

	conv, _ := s.Conversation("c7")
	assert.Zero(t, conv.UnreadCount)
}

func TestFailedSendRetryAndDiscard(t *testing.T) {
	tr := &fakeTransport{sendErr: errors.New("offline")}
	s := newTestStore(t, tr)
	s.active = "c1"

	e, err := s.Send(context.Background(), Draft{ConversationID: "c1", ReceiverID: "bob", Content: "one"})
	require.Error(t, err)
	failed, ok := e.(Failed)
	require.True(t, ok)
	assert.Equal(t, "temp-1", failed.TempID)
	assert.Equal(t, "offline", failed.Reason)

	_, _ = s.Send(context.Background(), Draft{ConversationID: "c1", ReceiverID: "bob", Content: "two"})
	assert.Equal(t, []string{"temp-1", "temp-2"}, keys(s.Messages("c1")))

	tr.mu.Lock()
	tr.sendErr = nil
	tr.mu.Unlock()

	e, err = s.Retry(context.Background(), "temp-1")
	require.NoError(t, err)
	assert.Equal(t, "m1", e.Key())
	assert.Equal(t, []string{"m1", "temp-2"}, keys(s.Messages("c1")))
	assert.Equal(t, "one", tr.sent[2].Content)

	_, err = s.Retry(context.Background(), "m1")
	assert.Error(t, err)
	_, err = s.Retry(context.Background(), "temp-9")
	assert.ErrorIs(t, err, ErrUnknownEntry)

	require.NoError(t, s.Discard("temp-2"))
	assert.Equal(t, []string{"m1"}, keys(s.Messages("c1")))
	assert.ErrorIs(t, s.Discard("temp-2"), ErrUnknownEntry)
}

func TestReceiveIsIdempotentAndCountsUnread(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestStore(t, tr)
	ctx := context.Background()

	assert.True(t, s.Receive(ctx, incoming("m1", "c1", "bob", "me")))
	assert.False(t, s.Receive(ctx, incoming("m1", "c1", "bob", "me")))
	assert.True(t, s.Receive(ctx, incoming("m2", "c1", "bob", "me")))

	conv, ok := s.Conversation("c1")
	require.True(t, ok)
	assert.Equal(t, 2, conv.UnreadCount)
	assert.Equal(t, "m2", conv.LastMessage.ID)
	assert.Len(t, s.Messages("c1"), 2)
	assert.Empty(t, tr.marked)
}

func TestReceiveInActiveConversationMarksRead(t *testing.T) {
	tr := &fakeTransport{history: map[string][]model.PopulatedMessage{
		"c1": {incoming("m1", "c1", "bob", "me")},
	}}
	s := newTestStore(t, tr)
	ctx := context.Background()

	s.Receive(ctx, incoming("m0", "c1", "bob", "me"))
	require.NoError(t, s.Open(ctx, "c1"))
	assert.Equal(t, "c1", s.Active())

	s.Receive(ctx, incoming("m2", "c1", "bob", "me"))

	require.Len(t, tr.marked, 1)
	assert.Equal(t, []string{"m1", "m2"}, tr.marked[0])
	conv, _ := s.Conversation("c1")
	assert.Zero(t, conv.UnreadCount)

	e, _ := s.Entry("m2")
	assert.Equal(t, model.MessageStatusRead, e.(Confirmed).Message.MessageStatus)

	// own messages are never reported
	s.Receive(ctx, incoming("m3", "c1", "me", "bob"))
	assert.Len(t, tr.marked, 1)
}

func TestStatusUpdatesAreMonotonic(t *testing.T) {
	s := newTestStore(t, &fakeTransport{})
	s.Receive(context.Background(), incoming("m1", "c1", "me", "bob"))

	assert.False(t, s.ApplyStatusUpdate("m1", model.MessageStatusSend))
	assert.True(t, s.ApplyStatusUpdate("m1", model.MessageStatusRead))
	assert.False(t, s.ApplyStatusUpdate("m1", model.MessageStatusDelivered))
	assert.False(t, s.ApplyStatusUpdate("nope", model.MessageStatusRead))

	e, _ := s.Entry("m1")
	assert.Equal(t, model.MessageStatusRead, e.(Confirmed).Message.MessageStatus)
}

func TestHandleEvent(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestStore(t, tr)
	ctx := context.Background()
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	emit := func(name string, payload any) {
		t.Helper()
		ev, err := event.New(name, payload)
		require.NoError(t, err)
		require.NoError(t, s.HandleEvent(ctx, ev))
	}

	emit(event.EventNewMessage, incoming("m1", "c1", "bob", "me"))
	emit(event.EventMessageStatusUpdate, model.MessageStatusEvent{MessageID: "m1", MessageStatus: model.MessageStatusRead})
	emit(event.EventReactionUpdate, model.ReactionUpdateEvent{MessageID: "m1", Reactions: []model.Reaction{{UserID: "bob", Emoji: "🎉"}}})
	emit(event.EventUserTyping, model.UserTypingEvent{ConversationID: "c1", UserID: "bob", IsTyping: true})
	emit(event.EventUserStatus, model.UserStatusEvent{UserID: "bob", IsOnline: false, LastSeen: &seen})
	emit(event.EventError, model.ErrorPayload{Code: "forbidden", Message: "nope"})
	emit("something_new", map[string]string{})

	e, ok := s.Entry("m1")
	require.True(t, ok)
	msg := e.(Confirmed).Message
	assert.Equal(t, model.MessageStatusRead, msg.MessageStatus)
	assert.Equal(t, []model.Reaction{{UserID: "bob", Emoji: "🎉"}}, msg.Reactions)

	assert.True(t, s.IsTyping("c1", "bob"))
	p, ok := s.Presence("bob")
	require.True(t, ok)
	assert.False(t, p.IsOnline)
	assert.True(t, p.LastSeen.Equal(seen))

	emit(event.EventUserTyping, model.UserTypingEvent{ConversationID: "c1", UserID: "bob", IsTyping: false})
	assert.False(t, s.IsTyping("c1", "bob"))

	emit(event.EventMessageDeleted, model.MessageDeletedEvent{MessageID: "m1"})
	_, ok = s.Entry("m1")
	assert.False(t, ok)

	bad := event.WsEvent{Event: event.EventNewMessage, Payload: []byte(`"oops"`)}
	assert.Error(t, s.HandleEvent(ctx, bad))
}

func TestDeleteOfFailedSendStaysLocal(t *testing.T) {
	tr := &fakeTransport{sendErr: errors.New("offline")}
	s := newTestStore(t, tr)

	_, err := s.Send(context.Background(), Draft{ConversationID: "c1", ReceiverID: "bob", Content: "lost"})
	require.Error(t, err)

	require.NoError(t, s.Delete(context.Background(), "temp-1"))
	assert.Empty(t, tr.deleted)
	assert.Empty(t, s.Messages("c1"))
	assert.ErrorIs(t, s.Delete(context.Background(), "temp-1"), ErrUnknownEntry)
}

func TestDeleteCallsServerThenRemoves(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestStore(t, tr)
	s.Receive(context.Background(), incoming("m1", "c1", "me", "bob"))

	require.NoError(t, s.Delete(context.Background(), "m1"))
	assert.Equal(t, []string{"m1"}, tr.deleted)
	assert.Empty(t, s.Messages("c1"))
}
