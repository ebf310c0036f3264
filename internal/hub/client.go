package hub

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is one live, authenticated channel for a user. The registry holds at
// most one per user.
type Conn interface {
	ID() string
	UserID() string
	// Send enqueues ev without blocking and reports whether it was accepted.
	Send(ev event.WsEvent) bool
	Close()
}

// Client is the websocket-backed Conn.
type Client struct {
	id          string
	userId      string
	conn        *websocket.Conn
	manager     *Hub
	egress      chan event.WsEvent
	connectedAt time.Time

	// cancel or stop goroutine
	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
}

var (
	// tuning parameters
	writeWait         = 10 * time.Second    // time allowed to write a message to the peer
	pongWait          = 60 * time.Second    // time allowed to read the next pong message from the peer
	pingInterval      = (pongWait * 9) / 10 // send pings to peer with this period
	maxMessageSize    = 64 * 1024           // max inbound message size (64KB)
	sendBufSize       = 256                 // per-connection outbound buffer size
	registerTimeout   = 5 * time.Second     // timeout for client registration
	unregisterTimeout = 5 * time.Second     // timeout for client unregistration
	inboundTimeout    = 500 * time.Millisecond
)

// RegisterClient creates a client for an authenticated user and hands it to
// the hub's lifecycle loop.
func RegisterClient(userId string, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		id:          uuid.New().String(),
		userId:      userId,
		conn:        conn,
		manager:     h,
		egress:      make(chan event.WsEvent, sendBufSize),
		connectedAt: time.Now().UTC(),
		cancel:      cancel,
		ctx:         ctx,
		connClosed:  make(chan struct{}),
	}

	// the write pump must be running before registration broadcasts presence
	go client.WriteMessage()

	select {
	case h.register <- client:
		go client.ReadMessages()
		h.logger.Info("client registered", zap.String("client_id", client.id), zap.String("user_id", userId))
		return client
	case <-time.After(registerTimeout):
		h.logger.Warn("failed to register client: timeout", zap.String("client_id", client.id))
		client.Close()
		return nil
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userId }

func (c *Client) ReadMessages() {
	logger := c.manager.logger.With(zap.String("client_id", c.id), zap.String("user_id", c.userId))
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-time.After(unregisterTimeout):
			logger.Warn("failed to unregister client: timeout")
		}
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		var ev event.WsEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				logger.Debug("client disconnected")
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Info("client timed out - closing connection")
				return
			}
			logger.Debug("read loop ended", zap.Error(err))
			return
		}

		// per-connection order holds because each client maps to one worker
		select {
		case c.manager.inboundFor(c) <- inboundMessage{client: c, event: ev}:
		case <-time.After(inboundTimeout):
			logger.Warn("inbound queue full, dropping client")
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.manager.logger.Debug("write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// Send never blocks: a full egress buffer means the peer is too slow and the
// connection is dropped to keep backpressure bounded.
func (c *Client) Send(ev event.WsEvent) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.egress <- ev:
		return true
	default:
		c.manager.logger.Warn("egress full, disconnecting client", zap.String("client_id", c.id))
		c.Close()
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()

		// Wait for WriteMessage to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
			}
		}()
	})
}

// ConnectedAt is when the handshake completed.
func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}
