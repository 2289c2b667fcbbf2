package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mweiler/datachat-go/internal/chat"
)

// StreamEvent is one frame of a streaming answer. Token frames carry
// answer fragments; the final frame has Done set and carries the complete
// turn response, which commits through the same reconciliation path as a
// non-streamed turn.
type StreamEvent struct {
	RequestID string           `json:"requestId,omitempty"`
	Token     string           `json:"token,omitempty"`
	Done      bool             `json:"done"`
	Error     *string          `json:"error,omitempty"`
	Turn      *rawTurnResponse `json:"turn,omitempty"`
}

// streamRequest opens a streaming turn.
type streamRequest struct {
	RequestID      string `json:"requestId"`
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
	ProjectID      string `json:"projectId"`
	Token          string `json:"token"`
}

// SendTurnStream submits a query over the streaming endpoint. The onToken
// callback is invoked for each answer fragment; return an error from it to
// abort. The returned TurnResponse is the final confirmed turn.
func (c *Client) SendTurnStream(
	ctx context.Context,
	query, conversationID, projectID string,
	onToken func(token string) error,
) (*chat.TurnResponse, error) {
	if c.token == "" {
		return nil, chat.ErrNoToken
	}

	// Convert HTTP endpoint to WebSocket endpoint
	wsEndpoint := c.baseURL + "/api/query/stream"
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	requestID := uuid.New().String()
	req := streamRequest{
		RequestID:      requestID,
		Query:          query,
		ConversationID: conversationID,
		ProjectID:      projectID,
		Token:          c.token,
	}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send stream request: %w", err)
	}

	// Close the connection when the context is cancelled so the read loop
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var event StreamEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read stream event: %w", err)
		}

		// Frames for an earlier, aborted request can still arrive on a
		// reused connection; drop them.
		if event.RequestID != "" && event.RequestID != requestID {
			continue
		}

		if event.Error != nil {
			return nil, fmt.Errorf("stream error: %s", *event.Error)
		}

		if event.Token != "" && onToken != nil {
			if err := onToken(event.Token); err != nil {
				return nil, err
			}
		}

		if event.Done {
			if event.Turn == nil {
				return nil, &chat.StatusError{Code: 0, Body: "stream finished without a turn payload"}
			}
			return event.Turn.toTurnResponse(), nil
		}
	}
}

// decodeStreamEvent is exposed for tests of the frame format.
func decodeStreamEvent(data []byte) (StreamEvent, error) {
	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return StreamEvent{}, fmt.Errorf("unmarshal stream event: %w", err)
	}
	return event, nil
}
