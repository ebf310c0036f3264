package hub

import (
	"context"
	"strings"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/event"
	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/service"

	"go.uber.org/zap"
)

const eventTimeout = 10 * time.Second

func (h *Hub) handleEvent(ev event.WsEvent, c Conn) {
	logger := h.logger.With(
		zap.String("event", ev.Event),
		zap.String("client_id", c.ID()),
		zap.String("user_id", c.UserID()))

	switch ev.Event {
	case event.EventUserConnected:
		var p model.UserConnectedPayload
		if err := ev.Decode(&p); err != nil {
			h.replyError(c, service.KindValidation, "invalid user_connected payload")
			return
		}
		if p.UserID != "" && p.UserID != c.UserID() {
			logger.Warn("user_connected identity mismatch", zap.String("claimed", p.UserID))
			h.replyError(c, service.KindForbidden, "user id does not match the authenticated user")
			return
		}
		// ServeWS already registered c; a late frame from a dropped or
		// replaced connection must not resurrect it
		if !h.Reannounce(c) {
			logger.Debug("user_connected from a connection that is no longer live")
		}

	case event.EventGetUserStatus:
		var p model.UserStatusRequest
		if err := ev.Decode(&p); err != nil || p.UserID == "" {
			h.replyError(c, service.KindValidation, "userId is required")
			return
		}
		ctx, cancel := context.WithTimeout(h.ctx, eventTimeout)
		status := h.UserStatus(ctx, p.UserID)
		cancel()
		h.reply(c, event.EventUserStatus, status)

	case event.EventTypingStart, event.EventTypingStop:
		var p model.TypingPayload
		if err := ev.Decode(&p); err != nil || p.ConversationID == "" || p.ReceiverID == "" {
			h.replyError(c, service.KindValidation, "conversationId and receiverId are required")
			return
		}
		if p.ReceiverID == c.UserID() {
			return
		}
		if ev.Event == event.EventTypingStart {
			h.typing.Start(c.UserID(), p.ConversationID, p.ReceiverID)
		} else {
			h.typing.Stop(c.UserID(), p.ConversationID, p.ReceiverID)
		}

	case event.EventAddReactions:
		var p model.AddReactionPayload
		if err := ev.Decode(&p); err != nil || p.MessageID == "" || strings.TrimSpace(p.Emoji) == "" {
			h.replyError(c, service.KindValidation, "messageId and emoji are required")
			return
		}
		if h.messages == nil {
			h.replyError(c, service.KindInternal, "reactions are unavailable")
			return
		}
		ctx, cancel := context.WithTimeout(h.ctx, eventTimeout)
		defer cancel()
		// the connection owner reacts, whatever the payload claims
		if _, err := h.messages.ToggleReaction(ctx, p.MessageID, c.UserID(), p.Emoji); err != nil {
			logger.Debug("reaction rejected", zap.Error(err))
			h.replyError(c, service.KindOf(err), service.MessageOf(err))
		}

	case event.EventMessageRead:
		var p model.MessageReadPayload
		if err := ev.Decode(&p); err != nil || len(p.MessageIDs) == 0 {
			h.replyError(c, service.KindValidation, "messageIds are required")
			return
		}
		if h.messages == nil {
			h.replyError(c, service.KindInternal, "read receipts are unavailable")
			return
		}
		ctx, cancel := context.WithTimeout(h.ctx, eventTimeout)
		defer cancel()
		// only messages addressed to the connection owner are marked
		if _, err := h.messages.MarkRead(ctx, p.MessageIDs, c.UserID()); err != nil {
			logger.Debug("read receipt rejected", zap.Error(err))
			h.replyError(c, service.KindOf(err), service.MessageOf(err))
		}

	default:
		logger.Debug("unknown event type")
		h.replyError(c, service.KindValidation, "unknown event: "+ev.Event)
	}
}

func (h *Hub) reply(c Conn, name string, payload any) {
	ev, err := event.New(name, payload)
	if err != nil {
		h.logger.Error("failed to encode reply", zap.String("event", name), zap.Error(err))
		return
	}
	c.Send(ev)
}

func (h *Hub) replyError(c Conn, kind service.Kind, msg string) {
	h.reply(c, event.EventError, model.ErrorPayload{Code: kind.String(), Message: msg})
}
