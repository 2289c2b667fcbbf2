package chat

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// conversationTitleLimit caps the length of titles synthesized from the
// first exchange of a new thread.
const conversationTitleLimit = 60

// Session holds the currently active conversation's ordered message list
// and the send/history statuses. It applies optimistic inserts, reconciles
// them against confirmed server responses, and rejects writes that target
// a conversation other than the active one. Session is not goroutine-safe;
// the Store serializes access.
type Session struct {
	activeID string
	messages []Message

	sendStatus    Status
	sendError     string
	historyStatus Status
	historyError  string

	now    func() time.Time
	logger *slog.Logger
}

// NewSession creates an empty session with no active conversation.
func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		sendStatus:    StatusIdle,
		historyStatus: StatusIdle,
		now:           time.Now,
		logger:        logger,
	}
}

// ActiveConversationID returns the active conversation id, or "" for a
// new, uncommitted thread.
func (s *Session) ActiveConversationID() string { return s.activeID }

// BelongsToActiveConversation is the staleness guard applied at the top of
// every response handler: a response targeting another conversation than
// the active one must be discarded without mutating state. An unset active
// id accepts any conversation (first turn of a new thread).
func (s *Session) BelongsToActiveConversation(conversationID string) bool {
	return s.activeID == "" || s.activeID == conversationID
}

// Messages returns a copy of the ordered message list.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SendStatus returns the send-path status and its failure message.
func (s *Session) SendStatus() (Status, string) { return s.sendStatus, s.sendError }

// HistoryStatus returns the history-fetch status and its failure message.
func (s *Session) HistoryStatus() (Status, string) { return s.historyStatus, s.historyError }

// BeginNewTurn appends an optimistic human message and marks the send path
// loading. The message has no server id yet; it is provisionally
// associated with the active conversation if one exists.
func (s *Session) BeginNewTurn(humanText string) Message {
	msg := Message{
		LocalKey:       uuid.New().String(),
		ConversationID: s.activeID,
		Role:           RoleHuman,
		Content:        humanText,
		CreatedAt:      s.now(),
	}
	s.messages = append(s.messages, msg)
	s.sendStatus = StatusLoading
	s.sendError = ""
	return msg
}

// CompleteTurn reconciles a confirmed send-turn response into the message
// list. A response for a different conversation than the active one is
// discarded entirely. The returned Conversation is non-nil when this turn
// created a brand-new thread and should be registered; applied is false
// when the response was discarded as stale or duplicate.
func (s *Session) CompleteTurn(resp TurnResponse) (newConv *Conversation, applied bool) {
	if !s.BelongsToActiveConversation(resp.ConversationID) {
		s.logger.Debug("discarding turn response for inactive conversation",
			"active", s.activeID, "response", resp.ConversationID)
		return nil, false
	}

	wasNew := s.activeID == ""
	s.activeID = resp.ConversationID

	humanIdx := s.confirmPendingHuman(resp)

	if s.hasAIMessage(resp) {
		// The same network response must never be applied twice.
		s.sendStatus = StatusSucceeded
		s.sendError = ""
		return nil, false
	}

	ai := Message{
		ID:             resp.AIMessageID,
		ConversationID: resp.ConversationID,
		Role:           RoleAI,
		Content:        resp.Analysis,
		CreatedAt:      resp.AICreatedAt,
		QueryType:      resp.QueryType,
		GeneratedSQL:   resp.GeneratedSQL,
		Visualization:  resp.Visualization,
	}
	if ai.CreatedAt.IsZero() {
		ai.CreatedAt = s.now()
	}
	s.insertAfter(humanIdx, ai)

	s.sendStatus = StatusSucceeded
	s.sendError = ""

	if wasNew {
		conv := s.synthesizeConversation(resp)
		return &conv, true
	}
	return nil, true
}

// FailTurn records a failed send: a synthetic AI message flagged as an
// error appears in the transcript so the user sees where the failure
// occurred, distinct from real content via IsError.
func (s *Session) FailTurn(message string) {
	s.messages = append(s.messages, Message{
		LocalKey:       uuid.New().String(),
		ConversationID: s.activeID,
		Role:           RoleAI,
		Content:        message,
		CreatedAt:      s.now(),
		IsError:        true,
	})
	s.sendStatus = StatusFailed
	s.sendError = message
}

// CancelTurn returns the send path to idle without appending anything.
// Cancellation is not an error.
func (s *Session) CancelTurn() {
	s.sendStatus = StatusIdle
	s.sendError = ""
}

// BeginHistoryLoad marks the history path loading.
func (s *Session) BeginHistoryLoad() {
	s.historyStatus = StatusLoading
	s.historyError = ""
}

// FailHistoryLoad records a failed history fetch.
func (s *Session) FailHistoryLoad(message string) {
	s.historyStatus = StatusFailed
	s.historyError = message
}

// LoadHistory wholesale-replaces the message list for a conversation, but
// only when the active conversation is unset or matches: a slow fetch for
// a conversation the user already navigated away from must not clobber the
// current thread. Messages are sorted by timestamp ascending; equal
// timestamps order human before ai, with a final id tie-break.
func (s *Session) LoadHistory(conv Conversation, msgs []Message) bool {
	if !s.BelongsToActiveConversation(conv.ID) {
		s.logger.Debug("discarding history for inactive conversation",
			"active", s.activeID, "fetched", conv.ID)
		return false
	}
	s.activeID = conv.ID

	sorted := make([]Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Role != b.Role {
			return a.Role == RoleHuman
		}
		return a.ID < b.ID
	})

	s.messages = sorted
	s.historyStatus = StatusSucceeded
	s.historyError = ""
	return true
}

// SwitchConversation clears the message list and statuses before a new
// history fetch, so no content from the previous conversation is visible
// under the new conversation's header.
func (s *Session) SwitchConversation(newID string) {
	s.activeID = newID
	s.messages = nil
	s.sendStatus = StatusIdle
	s.sendError = ""
	s.historyStatus = StatusIdle
	s.historyError = ""
}

// Clear resets the session to a new, uncommitted thread. Used after a
// conversation is confirmed deleted server-side.
func (s *Session) Clear() {
	s.SwitchConversation("")
}

// SetImportance flips a message's important flag and returns the prior
// value, for optimistic toggles with rollback on failure.
func (s *Session) SetImportance(messageID string, important bool) (prior bool, found bool) {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			prior = s.messages[i].Important
			s.messages[i].Important = important
			return prior, true
		}
	}
	return false, false
}

// RemoveMessage drops a message from the list after a confirmed delete.
func (s *Session) RemoveMessage(messageID string) bool {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true
		}
	}
	return false
}

// confirmPendingHuman stamps the most recent unconfirmed human message
// with its server-assigned identity and returns its index, or -1 when no
// optimistic message is pending.
func (s *Session) confirmPendingHuman(resp TurnResponse) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		msg := &s.messages[i]
		if msg.Role != RoleHuman || msg.Confirmed() {
			continue
		}
		msg.ID = resp.UserMessageID
		msg.ConversationID = resp.ConversationID
		if !resp.UserCreatedAt.IsZero() {
			msg.CreatedAt = resp.UserCreatedAt
		}
		return i
	}
	return -1
}

// hasAIMessage reports whether the response's AI message is already
// present, either by id or as a confirmed message with identical role and
// content.
func (s *Session) hasAIMessage(resp TurnResponse) bool {
	for _, msg := range s.messages {
		if resp.AIMessageID != "" && msg.ID == resp.AIMessageID {
			return true
		}
		if msg.Confirmed() && msg.Role == RoleAI && msg.Content == resp.Analysis {
			return true
		}
	}
	return false
}

// insertAfter places msg immediately after index idx, preserving
// conversational order under concurrent unrelated insertions. idx -1
// appends.
func (s *Session) insertAfter(idx int, msg Message) {
	if idx < 0 || idx >= len(s.messages)-1 {
		s.messages = append(s.messages, msg)
		return
	}
	s.messages = append(s.messages, Message{})
	copy(s.messages[idx+2:], s.messages[idx+1:])
	s.messages[idx+1] = msg
}

// synthesizeConversation builds a registry record for a thread created by
// this turn, titled from the human question or, failing that, the answer.
func (s *Session) synthesizeConversation(resp TurnResponse) Conversation {
	title := ""
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleHuman && s.messages[i].ID == resp.UserMessageID {
			title = s.messages[i].Content
			break
		}
	}
	if title == "" {
		title = resp.Analysis
	}
	now := s.now()
	created := resp.UserCreatedAt
	if created.IsZero() {
		created = now
	}
	return Conversation{
		ID:           resp.ConversationID,
		Title:        truncateTitle(title, conversationTitleLimit),
		CreatedAt:    created,
		UpdatedAt:    now,
		MessageCount: 2,
	}
}

// truncateTitle cuts on a rune boundary and trims trailing whitespace.
func truncateTitle(s string, limit int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= limit {
		return string(runes)
	}
	return strings.TrimRight(string(runes[:limit]), " ") + "…"
}
