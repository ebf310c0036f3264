package clientstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/model"
)

// HTTPTransport talks to the chat API with a bearer token.
type HTTPTransport struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (t *HTTPTransport) SendMessage(ctx context.Context, d Draft) (*model.PopulatedMessage, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("receiverId", d.ReceiverID)
	if d.Content != "" {
		_ = w.WriteField("content", d.Content)
	}
	if a := d.Attachment; a != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename=%q`, a.Filename))
		if a.MIME != "" {
			h.Set("Content-Type", a.MIME)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(a.Data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var msg model.PopulatedMessage
	if err := t.do(ctx, http.MethodPost, "/api/chats/send-message", w.FormDataContentType(), &body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (t *HTTPTransport) MarkRead(ctx context.Context, messageIDs []string) error {
	raw, err := json.Marshal(map[string][]string{"messageIds": messageIDs})
	if err != nil {
		return err
	}
	return t.do(ctx, http.MethodPut, "/api/chats/mark-as-read", "application/json", bytes.NewReader(raw), nil)
}

func (t *HTTPTransport) DeleteMessage(ctx context.Context, messageID string) error {
	return t.do(ctx, http.MethodDelete, "/api/chats/messages/"+url.PathEscape(messageID), "", nil, nil)
}

func (t *HTTPTransport) ListConversations(ctx context.Context) ([]model.ConversationView, error) {
	var out []model.ConversationView
	if err := t.do(ctx, http.MethodGet, "/api/chats/conversations", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *HTTPTransport) FetchMessages(ctx context.Context, conversationID string) ([]model.PopulatedMessage, error) {
	var out []model.PopulatedMessage
	path := "/api/chats/conversation/" + url.PathEscape(conversationID) + "/messages"
	if err := t.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, t.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+t.Token)

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
