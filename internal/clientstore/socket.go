package clientstore

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/event"
	"github.com/Md-KamranQutub/chatify/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const socketWriteWait = 10 * time.Second

// Socket is the client end of the live channel.
type Socket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *zap.Logger
}

// Dial opens the socket at rawURL, authenticating with token.
func Dial(ctx context.Context, rawURL, token string, logger *zap.Logger) (*Socket, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn, logger: logger}, nil
}

// Emit writes one event. Safe for concurrent use.
func (s *Socket) Emit(name string, payload any) error {
	ev, err := event.New(name, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return s.conn.WriteJSON(ev)
}

func (s *Socket) StartTyping(conversationID, receiverID string) error {
	return s.Emit(event.EventTypingStart, model.TypingPayload{ConversationID: conversationID, ReceiverID: receiverID})
}

func (s *Socket) StopTyping(conversationID, receiverID string) error {
	return s.Emit(event.EventTypingStop, model.TypingPayload{ConversationID: conversationID, ReceiverID: receiverID})
}

func (s *Socket) React(messageID, emoji string) error {
	return s.Emit(event.EventAddReactions, model.AddReactionPayload{MessageID: messageID, Emoji: emoji})
}

func (s *Socket) RequestStatus(userID string) error {
	return s.Emit(event.EventGetUserStatus, model.UserStatusRequest{UserID: userID})
}

// Listen feeds inbound events to store until the socket closes or ctx ends.
// Events are applied one at a time, in arrival order.
func (s *Socket) Listen(ctx context.Context, store *Store) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-done:
		}
	}()

	for {
		var ev event.WsEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := store.HandleEvent(ctx, ev); err != nil {
			s.logger.Warn("bad event payload", zap.String("event", ev.Event), zap.Error(err))
		}
	}
}

func (s *Socket) Close() error {
	return s.conn.Close()
}
