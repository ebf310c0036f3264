package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"net/http"
	"sync"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/event"
	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/repo"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	workerPoolSize  = 16 // tune: 16/64/128 depending on load
	presenceTimeout = 5 * time.Second
)

type inboundMessage struct {
	event  event.WsEvent
	client Conn
}

// MessageActions applies add_reactions and message_read events.
// *service.MessageService satisfies it.
type MessageActions interface {
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) ([]model.Reaction, error)
	MarkRead(ctx context.Context, messageIDs []string, readerID string) ([]model.Message, error)
}

type Options struct {
	Presence       repo.PresenceRepository
	TypingTimeout  time.Duration
	AfterFunc      AfterFunc
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Hub owns the user -> connection registry, presence transitions and typing
// sessions. It implements service.Notifier.
type Hub struct {
	onlineUsers   map[string]Conn
	onlineUsersMu sync.RWMutex
	// lifecycleMu serialises register/unregister so presence writes land in order
	lifecycleMu sync.Mutex

	register   chan Conn
	unregister chan Conn
	inbound    [workerPoolSize]chan inboundMessage

	presence  repo.PresenceRepository
	messages  MessageActions
	typing    *TypingTracker
	upgrader  websocket.Upgrader
	logger    *zap.Logger
	now       func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		onlineUsers: make(map[string]Conn),
		register:    make(chan Conn, 1024),
		unregister:  make(chan Conn, 1024),
		presence:    opts.Presence,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		ctx:         ctx,
		cancel:      cancel,
	}
	h.typing = NewTypingTracker(opts.TypingTimeout, opts.AfterFunc, h.emitTyping)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(opts.AllowedOrigins),
	}

	// run manager loop
	go h.run()

	// one queue per worker keeps each connection's events in arrival order
	for i := 0; i < workerPoolSize; i++ {
		h.inbound[i] = make(chan inboundMessage, 256)
		h.wg.Add(1)
		go func(q <-chan inboundMessage) {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-q:
					h.handleEvent(in.event, in.client)
				}
			}
		}(h.inbound[i])
	}

	return h
}

// SetMessageService wires the message events after the services exist.
func (h *Hub) SetMessageService(m MessageActions) {
	h.messages = m
}

// Typing exposes the typing tracker.
func (h *Hub) Typing() *TypingTracker {
	return h.typing
}

func getShard(key string) uint32 {
	if key == "" {
		return 0
	}

	h := sha1.Sum([]byte(key))
	return binary.BigEndian.Uint32(h[:4]) % workerPoolSize
}

func (h *Hub) inboundFor(c Conn) chan<- inboundMessage {
	return h.inbound[getShard(c.ID())]
}

// Register makes c the user's live connection, closing any connection it
// replaces, then marks the user online and broadcasts it.
func (h *Hub) Register(c Conn) {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	userID := c.UserID()

	h.onlineUsersMu.Lock()
	prev := h.onlineUsers[userID]
	h.onlineUsers[userID] = c
	h.onlineUsersMu.Unlock()

	if prev != nil && prev != c {
		h.logger.Info("replacing previous connection",
			zap.String("user_id", userID),
			zap.String("old_client_id", prev.ID()),
			zap.String("new_client_id", c.ID()))
		prev.Close()
	}

	h.setPresence(userID, true)
}

// Reannounce rebroadcasts the user's online status if c is still the live
// connection. Closed or replaced handles never go back into the registry.
func (h *Hub) Reannounce(c Conn) bool {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	if cur, ok := h.Lookup(c.UserID()); !ok || cur != c {
		return false
	}
	h.setPresence(c.UserID(), true)
	return true
}

// Unregister drops c if it is still the user's live connection. A handle
// that was already replaced is closed without touching presence.
func (h *Hub) Unregister(c Conn) bool {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	userID := c.UserID()

	h.onlineUsersMu.Lock()
	cur, ok := h.onlineUsers[userID]
	if !ok || cur != c {
		h.onlineUsersMu.Unlock()
		c.Close()
		return false
	}
	delete(h.onlineUsers, userID)
	h.onlineUsersMu.Unlock()

	c.Close()
	h.setPresence(userID, false)
	h.typing.CancelUser(userID)

	h.logger.Info("client removed", zap.String("client_id", c.ID()), zap.String("user_id", userID))
	return true
}

// Lookup returns the user's live connection.
func (h *Hub) Lookup(userID string) (Conn, bool) {
	h.onlineUsersMu.RLock()
	defer h.onlineUsersMu.RUnlock()
	c, ok := h.onlineUsers[userID]
	return c, ok
}

func (h *Hub) IsOnline(userID string) bool {
	_, ok := h.Lookup(userID)
	return ok
}

// SendToUser pushes ev to the user's live connection, if any.
func (h *Hub) SendToUser(userID string, ev event.WsEvent) bool {
	c, ok := h.Lookup(userID)
	if !ok {
		return false
	}
	return c.Send(ev)
}

// Broadcast pushes ev to every live connection except exceptUserID's and
// returns how many accepted it.
func (h *Hub) Broadcast(ev event.WsEvent, exceptUserID string) int {
	h.onlineUsersMu.RLock()
	targets := make([]Conn, 0, len(h.onlineUsers))
	for uid, c := range h.onlineUsers {
		if uid != exceptUserID {
			targets = append(targets, c)
		}
	}
	h.onlineUsersMu.RUnlock()

	// deliver without holding the lock
	sent := 0
	for _, c := range targets {
		if c.Send(ev) {
			sent++
		}
	}
	return sent
}

// UserStatus reports live presence, falling back to the persisted last-seen
// for users who are offline.
func (h *Hub) UserStatus(ctx context.Context, userID string) model.UserStatusEvent {
	if h.IsOnline(userID) {
		now := h.now()
		return model.UserStatusEvent{UserID: userID, IsOnline: true, LastSeen: &now}
	}

	out := model.UserStatusEvent{UserID: userID}
	if h.presence == nil {
		return out
	}
	p, err := h.presence.GetPresence(ctx, userID)
	if err != nil {
		h.logger.Debug("presence lookup failed", zap.String("user_id", userID), zap.Error(err))
		return out
	}
	if ls := p.LastSeen; !ls.IsZero() {
		out.LastSeen = &ls
	}
	return out
}

// ConnectedUsers returns a snapshot of the live connections.
func (h *Hub) ConnectedUsers() []Conn {
	h.onlineUsersMu.RLock()
	defer h.onlineUsersMu.RUnlock()
	out := make([]Conn, 0, len(h.onlineUsers))
	for _, c := range h.onlineUsers {
		out = append(out, c)
	}
	return out
}

func (h *Hub) setPresence(userID string, online bool) {
	now := h.now()

	if h.presence != nil {
		ctx, cancel := context.WithTimeout(h.ctx, presenceTimeout)
		if err := h.presence.SetPresence(ctx, userID, online, now); err != nil {
			h.logger.Warn("failed to persist presence",
				zap.String("user_id", userID),
				zap.Bool("online", online),
				zap.Error(err))
		}
		cancel()
	}

	ev, err := event.New(event.EventUserStatus, model.UserStatusEvent{
		UserID:   userID,
		IsOnline: online,
		LastSeen: &now,
	})
	if err != nil {
		h.logger.Error("failed to encode presence", zap.Error(err))
		return
	}
	h.Broadcast(ev, "")
}

func (h *Hub) emitTyping(receiverID string, payload model.UserTypingEvent) {
	ev, err := event.New(event.EventUserTyping, payload)
	if err != nil {
		h.logger.Error("failed to encode typing event", zap.Error(err))
		return
	}
	h.SendToUser(receiverID, ev)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.Register(c)
		case c := <-h.unregister:
			h.Unregister(c)
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()

	for _, c := range h.ConnectedUsers() {
		c.Close()
	}
	h.typing.StopAll()
	h.wg.Wait()
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients send no Origin
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS upgrades an already authenticated request and registers the
// resulting client for userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(userID, conn, h)
}
