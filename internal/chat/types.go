// Package chat implements the client-side conversation state store: it
// reconciles optimistic local messages against confirmed server responses,
// keeps the conversation list in sync with server snapshots, resolves chart
// visualizations arriving from independent endpoints, and tracks exactly one
// cancellable in-flight request. The CLI and TUI only read snapshots and
// invoke the operations exposed here; they never mutate state directly.
package chat

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Status is the lifecycle of one asynchronous operation. Each concern
// (send, history fetch, conversation list, importance, visualization,
// delete) owns an independent Status so a background refresh never flips
// the foreground "AI is responding" indicator.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Visualization is a rendered chart result tied to an AI message.
type Visualization struct {
	Type  string `json:"type"`
	Data  string `json:"data"`
	Title string `json:"title"`
	Query string `json:"query"`
}

// Message is one turn in a conversation. An optimistic message has an empty
// ID until the matching server response confirms it; LocalKey identifies it
// across that window.
type Message struct {
	ID             string
	LocalKey       string
	ConversationID string
	Role           Role
	Content        string
	CreatedAt      time.Time
	QueryType      string
	GeneratedSQL   string
	Important      bool
	IsError        bool
	Visualization  *Visualization
}

// Confirmed reports whether the message carries a server-assigned ID.
func (m Message) Confirmed() bool { return m.ID != "" }

// Conversation is a thread of messages. Status "" is treated as active;
// soft-deleted and archived conversations are filtered out of the registry
// except while the user is viewing them.
type Conversation struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	Status       string
	Archived     bool
}

// Deleted reports whether the conversation is flagged deleted server-side.
func (c Conversation) Deleted() bool { return c.Status == "deleted" }

// sortTime is the ordering key for the conversation list: updated_at when
// present, created_at otherwise.
func (c Conversation) sortTime() time.Time {
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}

// TurnResponse is the reconciliation-relevant part of the server's answer
// to a send-turn request.
type TurnResponse struct {
	ConversationID string         `json:"conversationId"`
	UserMessageID  string         `json:"userMessageId"`
	UserCreatedAt  time.Time      `json:"userCreatedAt"`
	AIMessageID    string         `json:"aiMessageId"`
	AICreatedAt    time.Time      `json:"aiCreatedAt"`
	Analysis       string         `json:"analysis"`
	QueryType      string         `json:"queryType,omitempty"`
	GeneratedSQL   string         `json:"generatedSql,omitempty"`
	Visualization  *Visualization `json:"visualization,omitempty"`
}
