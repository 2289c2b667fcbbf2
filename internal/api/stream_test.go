package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestDecodeStreamEvent(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    StreamEvent
		wantErr bool
	}{
		{
			name: "token frame",
			in:   `{"requestId": "r1", "token": "42 "}`,
			want: StreamEvent{RequestID: "r1", Token: "42 "},
		},
		{
			name: "done frame with turn",
			in:   `{"requestId": "r1", "done": true, "turn": {"conversationId": "c1", "analysis": "42 rows"}}`,
			want: StreamEvent{RequestID: "r1", Done: true},
		},
		{
			name:    "malformed frame",
			in:      `{"done": tru`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeStreamEvent([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeStreamEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.RequestID != tt.want.RequestID || got.Token != tt.want.Token || got.Done != tt.want.Done {
				t.Errorf("decodeStreamEvent() = %+v, want %+v", got, tt.want)
			}
			if tt.want.Done && got.Turn == nil {
				t.Error("done frame lost its turn payload")
			}
		})
	}
}

func TestSendTurnStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/query/stream" {
			t.Errorf("path = %q", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var req streamRequest
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		if req.Query != "how many rows?" || req.Token != "tok" {
			t.Errorf("request = %+v", req)
		}

		// A frame from an earlier request on a reused connection must be
		// dropped by the client.
		conn.WriteJSON(StreamEvent{RequestID: "stale-request", Token: "IGNORED"})
		conn.WriteJSON(StreamEvent{RequestID: req.RequestID, Token: "42 "})
		conn.WriteJSON(StreamEvent{RequestID: req.RequestID, Token: "rows"})
		conn.WriteJSON(StreamEvent{
			RequestID: req.RequestID,
			Done:      true,
			Turn: &rawTurnResponse{
				ConversationID: "c1",
				UserMessageID:  "u1",
				AIMessageID:    "a1",
				Analysis:       "42 rows",
			},
		})
	}))
	defer ts.Close()

	c := New(ts.URL, "tok")
	var tokens []string
	resp, err := c.SendTurnStream(context.Background(), "how many rows?", "", "p1", func(token string) error {
		tokens = append(tokens, token)
		return nil
	})
	if err != nil {
		t.Fatalf("SendTurnStream() = %v", err)
	}

	if got := strings.Join(tokens, ""); got != "42 rows" {
		t.Errorf("streamed tokens = %q, want \"42 rows\"", got)
	}
	if resp.ConversationID != "c1" || resp.AIMessageID != "a1" || resp.Analysis != "42 rows" {
		t.Errorf("final turn = %+v", resp)
	}
}

func TestSendTurnStreamServerError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req streamRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		msg := "query planner crashed"
		conn.WriteJSON(StreamEvent{RequestID: req.RequestID, Error: &msg})
	}))
	defer ts.Close()

	c := New(ts.URL, "tok")
	_, err := c.SendTurnStream(context.Background(), "question", "", "p1", nil)
	if err == nil || !strings.Contains(err.Error(), "query planner crashed") {
		t.Fatalf("SendTurnStream() = %v, want stream error", err)
	}
}

func TestSendTurnStreamRequiresToken(t *testing.T) {
	c := New("http://localhost:0", "")
	_, err := c.SendTurnStream(context.Background(), "q", "", "p1", nil)
	if err == nil {
		t.Fatal("SendTurnStream() without token = nil")
	}
}
