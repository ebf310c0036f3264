package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Md-KamranQutub/chatify/internal/media"
	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessageService is what the chat endpoints need from the delivery pipeline.
type MessageService interface {
	Create(ctx context.Context, in service.CreateMessageInput) (*model.PopulatedMessage, error)
	ListConversations(ctx context.Context, userID string) ([]model.ConversationView, error)
	FetchMessages(ctx context.Context, conversationID, userID string) ([]model.PopulatedMessage, error)
	MarkRead(ctx context.Context, messageIDs []string, readerID string) ([]model.Message, error)
	Delete(ctx context.Context, messageID, requesterID string) error
}

type ChatHandler interface {
	SendMessage(c *gin.Context)
	GetConversations(c *gin.Context)
	GetMessages(c *gin.Context)
	MarkAsRead(c *gin.Context)
	DeleteMessage(c *gin.Context)
}

type chatHandler struct {
	service MessageService
	logger  *zap.Logger
}

func NewChatHandler(service MessageService, logger *zap.Logger) ChatHandler {
	return &chatHandler{
		service: service,
		logger:  logger,
	}
}

type sendMessageRequest struct {
	SenderID      string `form:"senderId" json:"senderId"`
	ReceiverID    string `form:"receiverId" json:"receiverId"`
	Content       string `form:"content" json:"content"`
	MessageStatus string `form:"messageStatus" json:"messageStatus"`
}

type markAsReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		failure(c, http.StatusBadRequest, "invalid request body")
		return
	}

	caller := CurrentUser(c)
	if req.SenderID != "" && req.SenderID != caller {
		failure(c, http.StatusForbidden, "senderId does not match the authenticated user")
		return
	}

	in := service.CreateMessageInput{
		SenderID:      caller,
		ReceiverID:    req.ReceiverID,
		Content:       req.Content,
		ClaimedStatus: model.MessageStatus(req.MessageStatus),
	}

	fh, err := c.FormFile("media")
	switch {
	case err == nil:
		in.Media = media.FromFileHeader(fh)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		failure(c, http.StatusBadRequest, "invalid media upload")
		return
	}

	msg, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		h.logger.Debug("send message failed", zap.String("user_id", caller), zap.Error(err))
		fail(c, err)
		return
	}

	success(c, http.StatusCreated, "Message sent successfully", msg)
}

func (h *chatHandler) GetConversations(c *gin.Context) {
	convs, err := h.service.ListConversations(c.Request.Context(), CurrentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	success(c, http.StatusOK, "Conversations retrieved successfully", convs)
}

func (h *chatHandler) GetMessages(c *gin.Context) {
	conversationId := c.Param("conversationId")

	msgs, err := h.service.FetchMessages(c.Request.Context(), conversationId, CurrentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	success(c, http.StatusOK, "Messages retrieved successfully", msgs)
}

func (h *chatHandler) MarkAsRead(c *gin.Context) {
	var req markAsReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.service.MarkRead(c.Request.Context(), req.MessageIDs, CurrentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	success(c, http.StatusOK, "Messages marked as read", updated)
}

func (h *chatHandler) DeleteMessage(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("messageId"), CurrentUser(c)); err != nil {
		fail(c, err)
		return
	}

	success(c, http.StatusOK, "Message deleted successfully", nil)
}
