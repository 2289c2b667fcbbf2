package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mweiler/datachat-go/internal/chat"
)

func TestDoRequiresToken(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	_, err := c.Conversations(context.Background(), "p1")
	if !errors.Is(err, chat.ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
	if called {
		t.Error("request without token hit the network")
	}
}

func TestDoErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		notFound  bool
		transient bool
	}{
		{"not found", http.StatusNotFound, `{"error":"gone"}`, true, false},
		{"server error", http.StatusInternalServerError, "boom", false, true},
		{"rate limited", http.StatusTooManyRequests, "slow down", false, true},
		{"unauthorized", http.StatusUnauthorized, "bad token", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c := New(ts.URL, "tok")
			_, err := c.Conversations(context.Background(), "p1")
			if err == nil {
				t.Fatal("err = nil")
			}
			if got := errors.Is(err, chat.ErrNotFound); got != tt.notFound {
				t.Errorf("errors.Is(ErrNotFound) = %v, want %v", got, tt.notFound)
			}
			if got := chat.IsTransient(err); got != tt.transient {
				t.Errorf("IsTransient = %v, want %v", got, tt.transient)
			}
		})
	}
}

func TestDoUnparseableBodyIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>load balancer error page</html>"))
	}))
	defer ts.Close()

	c := New(ts.URL, "tok")
	_, err := c.Conversations(context.Background(), "p1")
	if !chat.IsTransient(err) {
		t.Errorf("unparseable 200 body not classified transient: %v", err)
	}
}

func TestSendTurn(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/query" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"conversationId": "c1",
			"userMessageId": "u1",
			"userCreatedAt": "2026-03-01T10:00:00Z",
			"aiMessageId": "a1",
			"aiCreatedAt": "2026-03-01 10:00:05",
			"analysis": "42 rows",
			"generatedSql": "SELECT count(*) FROM t"
		}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "tok")
	resp, err := c.SendTurn(context.Background(), "how many rows?", "", "p1")
	if err != nil {
		t.Fatalf("SendTurn() = %v", err)
	}
	if resp.ConversationID != "c1" || resp.AIMessageID != "a1" || resp.Analysis != "42 rows" {
		t.Errorf("resp = %+v", resp)
	}
	if !resp.UserCreatedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("UserCreatedAt = %v", resp.UserCreatedAt)
	}
	// The backend mixes timestamp formats within one response.
	if !resp.AICreatedAt.Equal(time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)) {
		t.Errorf("AICreatedAt = %v", resp.AICreatedAt)
	}
}

func TestHistory(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversations/c1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"conversation": {"id": "c1", "title": "Revenue"},
			"messages": [
				{"id": "m1", "role": "human", "content": "q"},
				{"message_id": "m2", "role": "ai", "content": "a", "is_important": 1}
			]
		}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "tok")
	conv, msgs, err := c.History(context.Background(), "c1")
	if err != nil {
		t.Fatalf("History() = %v", err)
	}
	if conv.ID != "c1" || conv.Title != "Revenue" {
		t.Errorf("conversation = %+v", conv)
	}
	if len(msgs) != 2 {
		t.Fatalf("message count = %d", len(msgs))
	}
	if msgs[1].MessageID != "m2" || !bool(msgs[1].ImportantSnake) {
		t.Errorf("snake_case message = %+v", msgs[1])
	}
}

func TestVisualizationsScoping(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	c := New(ts.URL, "tok")
	if _, err := c.Visualizations(context.Background(), "p1", "c1"); err != nil {
		t.Fatalf("Visualizations() = %v", err)
	}
	if gotQuery != "conversation_id=c1" {
		t.Errorf("query = %q, want conversation_id=c1", gotQuery)
	}

	if _, err := c.Visualizations(context.Background(), "p1", ""); err != nil {
		t.Fatalf("Visualizations() = %v", err)
	}
	if gotQuery != "" {
		t.Errorf("project-scoped fetch carried query %q", gotQuery)
	}
}

func TestSetImportance(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages/m1/importance" || r.Method != http.MethodPut {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"messageId": "m1", "important": true}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "tok")
	confirmed, err := c.SetImportance(context.Background(), "m1", true)
	if err != nil {
		t.Fatalf("SetImportance() = %v", err)
	}
	if !confirmed {
		t.Error("confirmed = false, want true")
	}
}
