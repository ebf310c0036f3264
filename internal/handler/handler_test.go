package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Md-KamranQutub/chatify/internal/auth"
	"github.com/Md-KamranQutub/chatify/internal/media"
	"github.com/Md-KamranQutub/chatify/internal/model"
	"github.com/Md-KamranQutub/chatify/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// tokenVerifier accepts "token-<user>" and rejects everything else.
type tokenVerifier struct{}

func (tokenVerifier) Verify(raw string) (string, error) {
	if user, ok := strings.CutPrefix(raw, "token-"); ok && user != "" {
		return user, nil
	}
	return "", auth.ErrInvalidToken
}

type fakeMessageService struct {
	created   *service.CreateMessageInput
	mediaName string
	createErr error
	marked    []string
	deleteErr error
}

func (f *fakeMessageService) Create(_ context.Context, in service.CreateMessageInput) (*model.PopulatedMessage, error) {
	f.created = &in
	if in.Media != nil {
		f.mediaName = in.Media.Filename
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &model.PopulatedMessage{Message: model.Message{
		ID:            "m1",
		SenderID:      in.SenderID,
		ReceiverID:    in.ReceiverID,
		Content:       in.Content,
		MessageStatus: model.MessageStatusSend,
	}}, nil
}

func (f *fakeMessageService) ListConversations(context.Context, string) ([]model.ConversationView, error) {
	return []model.ConversationView{}, nil
}

func (f *fakeMessageService) FetchMessages(_ context.Context, conversationID, _ string) ([]model.PopulatedMessage, error) {
	if conversationID == "missing" {
		return nil, &service.Error{Kind: service.KindNotFound, Message: "conversation not found"}
	}
	return []model.PopulatedMessage{}, nil
}

func (f *fakeMessageService) MarkRead(_ context.Context, ids []string, _ string) ([]model.Message, error) {
	f.marked = ids
	return []model.Message{}, nil
}

func (f *fakeMessageService) Delete(context.Context, string, string) error {
	return f.deleteErr
}

func newChatRouter(t *testing.T, svc MessageService) *gin.Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	r := gin.New()
	h := NewChatHandler(svc, logger)
	g := r.Group("/api/chats", AuthMiddleware(tokenVerifier{}, logger))
	g.POST("/send-message", h.SendMessage)
	g.GET("/conversations", h.GetConversations)
	g.GET("/conversation/:conversationId/messages", h.GetMessages)
	g.PUT("/mark-as-read", h.MarkAsRead)
	g.DELETE("/messages/:messageId", h.DeleteMessage)
	return r
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, Response) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body Response
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func authed(method, target string, body io.Reader, user string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer token-"+user)
	return req
}

func TestAuthMiddlewareRejects(t *testing.T) {
	r := newChatRouter(t, &fakeMessageService{})

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/api/chats/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "error", body.Status)

	req := httptest.NewRequest(http.MethodGet, "/api/chats/conversations", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w, _ = do(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendMessageMultipart(t *testing.T) {
	svc := &fakeMessageService{}
	r := newChatRouter(t, svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("receiverId", "u2"))
	require.NoError(t, mw.WriteField("content", "look"))
	require.NoError(t, mw.WriteField("messageStatus", "read"))
	part, err := mw.CreateFormFile("media", "cat.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("png"))
	require.NoError(t, mw.Close())

	req := authed(http.MethodPost, "/api/chats/send-message", &buf, "u1")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, body := do(r, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "Message sent successfully", body.Message)
	require.NotNil(t, svc.created)
	assert.Equal(t, "u1", svc.created.SenderID)
	assert.Equal(t, "u2", svc.created.ReceiverID)
	assert.Equal(t, model.MessageStatusRead, svc.created.ClaimedStatus)
	assert.Equal(t, "cat.png", svc.mediaName)
}

func TestSendMessageJSONWithoutMedia(t *testing.T) {
	svc := &fakeMessageService{}
	r := newChatRouter(t, svc)

	req := authed(http.MethodPost, "/api/chats/send-message", strings.NewReader(`{"receiverId":"u2","content":"hi"}`), "u1")
	req.Header.Set("Content-Type", "application/json")
	w, _ := do(r, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "hi", svc.created.Content)
	assert.Nil(t, svc.created.Media)
}

func TestSendMessageSenderMismatch(t *testing.T) {
	svc := &fakeMessageService{}
	r := newChatRouter(t, svc)

	req := authed(http.MethodPost, "/api/chats/send-message", strings.NewReader(`{"senderId":"u3","receiverId":"u2","content":"hi"}`), "u1")
	req.Header.Set("Content-Type", "application/json")
	w, body := do(r, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "error", body.Status)
	assert.Nil(t, svc.created)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	svc := &fakeMessageService{
		createErr: &service.Error{Kind: service.KindValidation, Message: "receiverId is required"},
		deleteErr: &service.Error{Kind: service.KindForbidden, Message: "only the sender can delete a message"},
	}
	r := newChatRouter(t, svc)

	req := authed(http.MethodPost, "/api/chats/send-message", strings.NewReader(`{"content":"hi"}`), "u1")
	req.Header.Set("Content-Type", "application/json")
	w, body := do(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "receiverId is required", body.Message)

	w, body = do(r, authed(http.MethodDelete, "/api/chats/messages/m1", nil, "u2"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "only the sender can delete a message", body.Message)

	w, _ = do(r, authed(http.MethodGet, "/api/chats/conversation/missing/messages", nil, "u1"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.deleteErr = errors.New("mongo exploded")
	w, body = do(r, authed(http.MethodDelete, "/api/chats/messages/m1", nil, "u1"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, body.Message, "mongo")
}

func TestMarkAsRead(t *testing.T) {
	svc := &fakeMessageService{}
	r := newChatRouter(t, svc)

	req := authed(http.MethodPut, "/api/chats/mark-as-read", strings.NewReader(`{"messageIds":["m1","m2"]}`), "u2")
	req.Header.Set("Content-Type", "application/json")
	w, body := do(r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, []string{"m1", "m2"}, svc.marked)

	req = authed(http.MethodPut, "/api/chats/mark-as-read", strings.NewReader(`{`), "u2")
	req.Header.Set("Content-Type", "application/json")
	w, _ = do(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeUpdateService struct {
	content string
	upload  *media.Upload
}

func (f *fakeUpdateService) Create(_ context.Context, userID, content string, up *media.Upload) (*model.PopulatedUpdate, error) {
	f.content, f.upload = content, up
	return &model.PopulatedUpdate{Update: model.Update{ID: "up1", UserID: userID, Content: content}}, nil
}

func (f *fakeUpdateService) List(context.Context) ([]model.PopulatedUpdate, error) {
	return []model.PopulatedUpdate{}, nil
}

func (f *fakeUpdateService) View(_ context.Context, id, _ string) (*model.Update, error) {
	if id != "up1" {
		return nil, &service.Error{Kind: service.KindNotFound, Message: "update not found"}
	}
	return &model.Update{ID: id}, nil
}

func (f *fakeUpdateService) Delete(context.Context, string, string) error { return nil }

func TestUpdateHandler(t *testing.T) {
	svc := &fakeUpdateService{}
	logger := zaptest.NewLogger(t)
	r := gin.New()
	h := NewUpdateHandler(svc)
	g := r.Group("/api/update", AuthMiddleware(tokenVerifier{}, logger))
	g.POST("", h.CreateUpdate)
	g.PUT("/:updateId/view", h.ViewUpdate)

	req := authed(http.MethodPost, "/api/update", strings.NewReader("content=hello"), "u1")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w, body := do(r, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "hello", svc.content)
	assert.Nil(t, svc.upload)

	w, _ = do(r, authed(http.MethodPut, "/api/update/nope/view", nil, "u2"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type staticStats model.MonitorResponse

func (s staticStats) GetStats() model.MonitorResponse { return model.MonitorResponse(s) }

func TestMonitorHandler(t *testing.T) {
	r := gin.New()
	r.GET("/api/monitor/stats", NewMonitorHandler(staticStats{Status: "healthy"}).GetHubStats)

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/api/monitor/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body.Status)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}
