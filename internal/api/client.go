package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/mweiler/datachat-go/internal/chat"
)

// Client is an HTTP client for the datachat backend. All requests carry a
// bearer token; its absence is a terminal local error for the request.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new backend client.
// If baseURL is empty, uses DATACHAT_SERVER_URL env var or defaults to
// localhost:8090. Timeout can be configured via DATACHAT_CLIENT_TIMEOUT
// (default 2m; analysis queries can be slow).
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("DATACHAT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}

	timeout := 2 * time.Minute
	if t := os.Getenv("DATACHAT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// HasToken reports whether a bearer token is configured.
func (c *Client) HasToken() bool { return c.token != "" }

// do sends one JSON request and decodes the response into out (when
// non-nil). A missing token fails locally before any network traffic, 404
// is terminal, and every other non-2xx response is a transient
// StatusError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.token == "" {
		return chat.ErrNoToken
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", chat.ErrNotFound, snippet(respBody))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &chat.StatusError{Code: resp.StatusCode, Body: snippet(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &chat.StatusError{Code: resp.StatusCode, Body: "unparseable response body"}
		}
	}
	return nil
}

// snippet bounds an error body for inclusion in messages.
func snippet(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// rawTurnResponse is the wire shape of a send-turn answer; timestamps
// arrive as strings in whichever format the backend favors today.
type rawTurnResponse struct {
	ConversationID string              `json:"conversationId"`
	UserMessageID  string              `json:"userMessageId"`
	UserCreatedAt  string              `json:"userCreatedAt"`
	AIMessageID    string              `json:"aiMessageId"`
	AICreatedAt    string              `json:"aiCreatedAt"`
	Analysis       string              `json:"analysis"`
	QueryType      string              `json:"queryType"`
	GeneratedSQL   string              `json:"generatedSql"`
	Visualization  *chat.Visualization `json:"visualization"`
}

func (r rawTurnResponse) toTurnResponse() *chat.TurnResponse {
	return &chat.TurnResponse{
		ConversationID: r.ConversationID,
		UserMessageID:  r.UserMessageID,
		UserCreatedAt:  chat.ParseTimestamp(r.UserCreatedAt),
		AIMessageID:    r.AIMessageID,
		AICreatedAt:    chat.ParseTimestamp(r.AICreatedAt),
		Analysis:       r.Analysis,
		QueryType:      r.QueryType,
		GeneratedSQL:   r.GeneratedSQL,
		Visualization:  r.Visualization,
	}
}

// turnRequest is the outbound payload for ask and generate-visualization.
type turnRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
	ProjectID      string `json:"projectId"`
}

// SendTurn submits a natural-language query. conversationID "" starts a
// new thread; the server assigns an id in the response.
func (c *Client) SendTurn(ctx context.Context, query, conversationID, projectID string) (*chat.TurnResponse, error) {
	var raw rawTurnResponse
	req := turnRequest{Query: query, ConversationID: conversationID, ProjectID: projectID}
	if err := c.do(ctx, http.MethodPost, "/api/query", req, &raw); err != nil {
		return nil, err
	}
	return raw.toTurnResponse(), nil
}

// GenerateVisualization asks the backend to produce a chart for a query.
// The response reconciles exactly like a send-turn response.
func (c *Client) GenerateVisualization(ctx context.Context, query, conversationID, projectID string) (*chat.TurnResponse, error) {
	var raw rawTurnResponse
	req := turnRequest{Query: query, ConversationID: conversationID, ProjectID: projectID}
	if err := c.do(ctx, http.MethodPost, "/api/visualization", req, &raw); err != nil {
		return nil, err
	}
	return raw.toTurnResponse(), nil
}

// Conversations fetches the authoritative conversation list for a project.
func (c *Client) Conversations(ctx context.Context, projectID string) ([]chat.RawConversation, error) {
	var raws []chat.RawConversation
	path := "/api/projects/" + url.PathEscape(projectID) + "/conversations"
	if err := c.do(ctx, http.MethodGet, path, nil, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// historyResponse is the wire shape of a conversation history fetch.
type historyResponse struct {
	Conversation chat.RawConversation `json:"conversation"`
	Messages     []chat.RawMessage    `json:"messages"`
}

// History fetches a conversation and its full message list.
func (c *Client) History(ctx context.Context, conversationID string) (chat.RawConversation, []chat.RawMessage, error) {
	var resp historyResponse
	path := "/api/conversations/" + url.PathEscape(conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return chat.RawConversation{}, nil, err
	}
	return resp.Conversation, resp.Messages, nil
}

// Visualizations fetches the side-loaded visualization list. With a
// conversation id it is scoped to that thread, otherwise to the project.
func (c *Client) Visualizations(ctx context.Context, projectID, conversationID string) ([]chat.RawVisualization, error) {
	path := "/api/projects/" + url.PathEscape(projectID) + "/visualizations"
	if conversationID != "" {
		path += "?conversation_id=" + url.QueryEscape(conversationID)
	}
	var raws []chat.RawVisualization
	if err := c.do(ctx, http.MethodGet, path, nil, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// ImportantMessages fetches the messages the user marked important.
func (c *Client) ImportantMessages(ctx context.Context, projectID string) ([]chat.RawMessage, error) {
	var raws []chat.RawMessage
	path := "/api/projects/" + url.PathEscape(projectID) + "/messages/important"
	if err := c.do(ctx, http.MethodGet, path, nil, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// importanceResponse confirms an importance toggle.
type importanceResponse struct {
	MessageID string `json:"messageId"`
	Important bool   `json:"important"`
}

// SetImportance flips a message's important flag server-side and returns
// the confirmed value.
func (c *Client) SetImportance(ctx context.Context, messageID string, important bool) (bool, error) {
	var resp importanceResponse
	path := "/api/messages/" + url.PathEscape(messageID) + "/importance"
	if err := c.do(ctx, http.MethodPut, path, map[string]any{"important": important}, &resp); err != nil {
		return false, err
	}
	return resp.Important, nil
}

// RenameConversation updates a conversation title.
func (c *Client) RenameConversation(ctx context.Context, conversationID, title string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, http.MethodPatch, path, map[string]any{"title": title}, nil)
}

// DeleteConversation soft-deletes a conversation server-side.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// DeleteMessage deletes a single message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	path := "/api/messages/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Project is a project summary for the dashboard listing.
type Project struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	ConversationCount int    `json:"conversation_count"`
	CreatedAt         string `json:"created_at"`
}

// Projects lists the projects visible to the current user.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}
