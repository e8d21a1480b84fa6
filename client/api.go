package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"
)

// APIClient talks to the chat service HTTP boundary with a bearer token.
// It satisfies Fetcher, so it plugs straight into SyncClient.
type APIClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type conversationsResp struct {
	Conversations []*chatmodel.ConversationSummary `json:"conversations"`
}

func (c *APIClient) ListConversations(ctx context.Context) ([]*chatmodel.ConversationSummary, error) {
	var out conversationsResp
	if err := c.do(ctx, http.MethodGet, "/api/v1/chat/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *APIClient) CreateConversation(ctx context.Context, recipientID, text string) (*chatmodel.Conversation, error) {
	body := map[string]string{"recipient_id": recipientID}
	if text != "" {
		body["text"] = text
	}
	var out chatmodel.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/chat/conversations/"+url.PathEscape(conversationID), nil, nil)
}

func (c *APIClient) ListMessages(ctx context.Context, conversationID, cursor string, pageSize int) (*chatmodel.MessagePage, error) {
	path := "/api/v1/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out chatmodel.MessagePage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recent implements Fetcher: the newest page of the conversation.
func (c *APIClient) Recent(ctx context.Context, conversationID string, pageSize int) (*chatmodel.MessagePage, error) {
	return c.ListMessages(ctx, conversationID, "", pageSize)
}

func (c *APIClient) SendMessage(ctx context.Context, conversationID, text string) (*chatmodel.Message, error) {
	var out chatmodel.Message
	path := "/api/v1/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) MarkAllRead(ctx context.Context, conversationID string) error {
	path := "/api/v1/chat/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, http.MethodPost, path, struct{}{}, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return errs.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return errs.ErrTransient.WrapMsg("request failed", "method", method, "path", path, "cause", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.WrapMsg(err, "decode response", "path", path)
	}
	return nil
}

// decodeError rebuilds the server's CodeError so callers can branch with
// errors.Is against the taxonomy regardless of transport.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ce errs.CodeError
	if err := json.Unmarshal(raw, &ce); err == nil && ce.Code != 0 {
		return ce.Wrap()
	}
	return errs.ErrTransient.WithDetailf("http %d: %s", resp.StatusCode, truncate(string(raw), 200)).Wrap()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
