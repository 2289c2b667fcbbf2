package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Backend is the network collaborator the store drives. *api.Client
// implements it; tests substitute a fake.
type Backend interface {
	SendTurn(ctx context.Context, query, conversationID, projectID string) (*TurnResponse, error)
	GenerateVisualization(ctx context.Context, query, conversationID, projectID string) (*TurnResponse, error)
	Conversations(ctx context.Context, projectID string) ([]RawConversation, error)
	History(ctx context.Context, conversationID string) (RawConversation, []RawMessage, error)
	Visualizations(ctx context.Context, projectID, conversationID string) ([]RawVisualization, error)
	ImportantMessages(ctx context.Context, projectID string) ([]RawMessage, error)
	SetImportance(ctx context.Context, messageID string, important bool) (bool, error)
	RenameConversation(ctx context.Context, conversationID, title string) error
	DeleteConversation(ctx context.Context, conversationID string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Recorder receives request timings; the metrics collector implements it.
type Recorder interface {
	Record(kind string, d time.Duration)
}

// Statuses is a snapshot of the independent status fields. Each is its own
// state machine so a background conversation-list refresh never flips the
// "AI is responding" indicator.
type Statuses struct {
	Send               Status
	SendError          string
	History            Status
	HistoryError       string
	Conversations      Status
	ConversationsError string
	Importance         Status
	ImportanceError    string
	Visualization      Status
	VisualizationError string
	Delete             Status
	DeleteError        string
}

// Store composes the session, registry, resolver and coordinator behind a
// single-writer mutex. Operations block until their network call resolves;
// callers that need asynchrony (the TUI) run them in their own goroutines
// and read snapshots. Optimistic state is visible to snapshot readers
// while a call is in flight.
type Store struct {
	mu sync.Mutex

	backend   Backend
	session   *Session
	registry  *Registry
	resolver  *Resolver
	norm      *Normalizer
	coord     *Coordinator
	recorder  Recorder
	logger    *slog.Logger
	projectID string

	conversationsStatus Status
	conversationsError  string
	importanceStatus    Status
	importanceError     string
	visualizationStatus Status
	visualizationError  string
	deleteStatus        Status
	deleteError         string
}

// StoreConfig carries the store's tunables.
type StoreConfig struct {
	ProjectID string
	// VisualizationMinChars is the placeholder-payload threshold; <= 0
	// selects the default.
	VisualizationMinChars int
	// RecentConversationWindow shields just-created conversations from
	// snapshot churn; <= 0 selects the default.
	RecentConversationWindow time.Duration
}

// NewStore creates a Store. recorder may be nil.
func NewStore(backend Backend, recorder Recorder, logger *slog.Logger, cfg StoreConfig) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		backend:   backend,
		session:   NewSession(logger),
		registry:  NewRegistry(cfg.RecentConversationWindow, logger),
		resolver:  NewResolver(cfg.VisualizationMinChars),
		norm:      NewNormalizer(logger),
		coord:     NewCoordinator(),
		recorder:  recorder,
		logger:    logger,
		projectID: cfg.ProjectID,

		conversationsStatus: StatusIdle,
		importanceStatus:    StatusIdle,
		visualizationStatus: StatusIdle,
		deleteStatus:        StatusIdle,
	}
}

// Messages returns the ordered message list for the active conversation,
// with side-loaded visualizations merged in.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.session.Messages()
	s.resolver.Merge(msgs)
	return msgs
}

// Conversations returns the deduplicated, sorted conversation list.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Snapshot()
}

// ActiveConversationID returns the active conversation id, "" for a new
// uncommitted thread.
func (s *Store) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ActiveConversationID()
}

// ActiveConversation returns the registry record for the active thread.
func (s *Store) ActiveConversation() (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Get(s.session.ActiveConversationID())
}

// Statuses returns a snapshot of every status field.
func (s *Store) Statuses() Statuses {
	s.mu.Lock()
	defer s.mu.Unlock()
	send, sendErr := s.session.SendStatus()
	hist, histErr := s.session.HistoryStatus()
	return Statuses{
		Send:               send,
		SendError:          sendErr,
		History:            hist,
		HistoryError:       histErr,
		Conversations:      s.conversationsStatus,
		ConversationsError: s.conversationsError,
		Importance:         s.importanceStatus,
		ImportanceError:    s.importanceError,
		Visualization:      s.visualizationStatus,
		VisualizationError: s.visualizationError,
		Delete:             s.deleteStatus,
		DeleteError:        s.deleteError,
	}
}

// SubmitQuery runs one ask turn: optimistic human message, network call,
// reconciliation. It blocks until the turn resolves; the optimistic
// message is visible to snapshot readers throughout. A cancelled turn
// resolves to nil with the send path back at idle.
func (s *Store) SubmitQuery(ctx context.Context, query string) error {
	return s.runTurn(ctx, query, s.backend.SendTurn, "send")
}

// GenerateVisualization runs a turn through the visualization endpoint.
// The response reconciles exactly like an ask turn.
func (s *Store) GenerateVisualization(ctx context.Context, query string) error {
	return s.runTurn(ctx, query, s.backend.GenerateVisualization, "visualization_turn")
}

type turnCall func(ctx context.Context, query, conversationID, projectID string) (*TurnResponse, error)

func (s *Store) runTurn(ctx context.Context, query string, call turnCall, kind string) error {
	s.mu.Lock()
	conversationID := s.session.ActiveConversationID()
	s.session.BeginNewTurn(query)
	s.mu.Unlock()

	ctx, token := s.coord.Begin(ctx)
	start := time.Now()
	resp, err := call(ctx, query, conversationID, s.projectID)
	s.record(kind, time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.coord.Finish(token) {
		// A newer request superseded this one, or the user cancelled.
		// Some transports still deliver the callback after abort; drop
		// the result without touching the session, whose send status
		// now belongs to the fresh turn. The cancel path resets it in
		// CancelInFlight.
		return nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.session.CancelTurn()
			return nil
		}
		s.session.FailTurn(err.Error())
		return err
	}

	newConv, applied := s.session.CompleteTurn(*resp)
	if !applied {
		s.logger.Debug("turn response not applied", "conversation", resp.ConversationID)
		return nil
	}
	if newConv != nil {
		s.registry.UpsertOptimistic(*newConv)
	} else if conv, ok := s.registry.Get(resp.ConversationID); ok {
		conv.UpdatedAt = time.Now()
		conv.MessageCount += 2
		s.registry.UpsertOptimistic(conv)
	}
	return nil
}

// ApplyTurn reconciles an externally-obtained turn response, e.g. the
// final frame of a streamed answer.
func (s *Store) ApplyTurn(resp TurnResponse) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	newConv, applied := s.session.CompleteTurn(resp)
	if newConv != nil {
		s.registry.UpsertOptimistic(*newConv)
	}
	return applied
}

// BeginTurn appends the optimistic human message for an externally-driven
// turn (the streaming path) and marks the send path loading.
func (s *Store) BeginTurn(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.BeginNewTurn(query)
}

// FailTurn records a failure for an externally-driven turn.
func (s *Store) FailTurn(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.FailTurn(message)
}

// CancelInFlight aborts the outstanding send, if any, and returns the send
// path to idle without appending an error message.
func (s *Store) CancelInFlight() {
	if s.coord.Cancel() {
		s.mu.Lock()
		s.session.CancelTurn()
		s.mu.Unlock()
	}
}

// RefreshConversations reconciles a fresh server snapshot into the
// registry. It runs on its own status field and never touches the send or
// history paths.
func (s *Store) RefreshConversations(ctx context.Context) error {
	s.setStatus(&s.conversationsStatus, &s.conversationsError, StatusLoading, "")

	start := time.Now()
	raws, err := s.backend.Conversations(ctx, s.projectID)
	s.record("conversations", time.Since(start))
	if err != nil {
		s.setStatus(&s.conversationsStatus, &s.conversationsError, StatusFailed, err.Error())
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.ReplaceFromServer(s.norm.Conversations(raws), s.session.ActiveConversationID())
	s.conversationsStatus = StatusSucceeded
	s.conversationsError = ""
	return nil
}

// OpenConversation switches the session to a conversation and loads its
// history. The message list is cleared before the fetch so nothing from
// the previous thread shows under the new header. A history response
// arriving after the user has switched again is discarded by the session
// guard. On a terminal not-found the local conversation state is cleared
// so nothing keeps operating on a dead thread.
func (s *Store) OpenConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.session.SwitchConversation(conversationID)
	s.session.BeginHistoryLoad()
	s.mu.Unlock()

	start := time.Now()
	rawConv, rawMsgs, err := s.backend.History(ctx, conversationID)
	s.record("history", time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		notFound := errors.Is(err, ErrNotFound)
		if notFound {
			// Confirmed gone server-side; drop it from the list even
			// when the user has already moved on.
			s.registry.Remove(conversationID)
		}
		if s.session.ActiveConversationID() != conversationID {
			// The user navigated away while this fetch was in flight;
			// its failure must not touch the current thread's status.
			return err
		}
		if notFound {
			s.session.Clear()
		}
		s.session.FailHistoryLoad(err.Error())
		return err
	}

	conv, ok := s.norm.Conversation(rawConv)
	if !ok {
		conv = Conversation{ID: conversationID}
	}
	msgs := s.norm.Messages(rawMsgs)
	s.resolver.Merge(msgs)
	if s.session.LoadHistory(conv, msgs) {
		s.registry.UpsertOptimistic(conv)
	}
	return nil
}

// StartNewConversation switches to a new, uncommitted thread.
func (s *Store) StartNewConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.SwitchConversation("")
}

// RefreshVisualizations side-loads the visualization list and merges it
// into the current messages. The fetch can race with or follow history
// loading; the merge is idempotent either way.
func (s *Store) RefreshVisualizations(ctx context.Context) error {
	s.setStatus(&s.visualizationStatus, &s.visualizationError, StatusLoading, "")

	s.mu.Lock()
	conversationID := s.session.ActiveConversationID()
	s.mu.Unlock()

	start := time.Now()
	raws, err := s.backend.Visualizations(ctx, s.projectID, conversationID)
	s.record("visualizations", time.Since(start))
	if err != nil {
		s.setStatus(&s.visualizationStatus, &s.visualizationError, StatusFailed, err.Error())
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range raws {
		if messageID, vis, ok := s.norm.Visualization(raw); ok {
			s.resolver.Put(messageID, vis)
		}
	}
	s.visualizationStatus = StatusSucceeded
	s.visualizationError = ""
	return nil
}

// ImportantMessages fetches the project's important messages. Runs on its
// own status field.
func (s *Store) ImportantMessages(ctx context.Context) ([]Message, error) {
	s.setStatus(&s.importanceStatus, &s.importanceError, StatusLoading, "")

	start := time.Now()
	raws, err := s.backend.ImportantMessages(ctx, s.projectID)
	s.record("important", time.Since(start))
	if err != nil {
		s.setStatus(&s.importanceStatus, &s.importanceError, StatusFailed, err.Error())
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.norm.Messages(raws)
	s.resolver.Merge(msgs)
	s.importanceStatus = StatusSucceeded
	s.importanceError = ""
	return msgs, nil
}

// ToggleImportance optimistically flips a message's important flag, then
// confirms with the backend, rolling back on failure. It runs on the
// importance status field so it never blocks or is blocked by the send
// path.
func (s *Store) ToggleImportance(ctx context.Context, messageID string) error {
	s.mu.Lock()
	msgs := s.session.Messages()
	var current bool
	found := false
	for _, msg := range msgs {
		if msg.ID == messageID {
			current = msg.Important
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return ErrNotFound
	}
	next := !current
	s.session.SetImportance(messageID, next)
	s.importanceStatus = StatusLoading
	s.importanceError = ""
	s.mu.Unlock()

	start := time.Now()
	confirmed, err := s.backend.SetImportance(ctx, messageID, next)
	s.record("importance", time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// Roll back the optimistic flip and surface the failure.
		s.session.SetImportance(messageID, current)
		s.importanceStatus = StatusFailed
		s.importanceError = err.Error()
		return err
	}
	s.session.SetImportance(messageID, confirmed)
	s.importanceStatus = StatusSucceeded
	s.importanceError = ""
	return nil
}

// DeleteConversation soft-deletes a conversation server-side and removes
// it locally. Deleting the active conversation clears the session.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	s.setStatus(&s.deleteStatus, &s.deleteError, StatusLoading, "")

	start := time.Now()
	err := s.backend.DeleteConversation(ctx, conversationID)
	s.record("delete", time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.deleteStatus = StatusFailed
		s.deleteError = err.Error()
		return err
	}
	// Already-gone counts as deleted.
	s.registry.Remove(conversationID)
	if s.session.ActiveConversationID() == conversationID {
		s.session.Clear()
	}
	s.deleteStatus = StatusSucceeded
	s.deleteError = ""
	return nil
}

// DeleteMessage deletes a single message server-side and locally.
func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	s.setStatus(&s.deleteStatus, &s.deleteError, StatusLoading, "")

	start := time.Now()
	err := s.backend.DeleteMessage(ctx, messageID)
	s.record("delete", time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.deleteStatus = StatusFailed
		s.deleteError = err.Error()
		return err
	}
	s.session.RemoveMessage(messageID)
	s.deleteStatus = StatusSucceeded
	s.deleteError = ""
	return nil
}

// RenameConversation updates a conversation title server-side and locally.
func (s *Store) RenameConversation(ctx context.Context, conversationID, title string) error {
	if err := s.backend.RenameConversation(ctx, conversationID, title); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Rename(conversationID, title)
	return nil
}

func (s *Store) setStatus(status *Status, errMsg *string, v Status, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*status = v
	*errMsg = msg
}

func (s *Store) record(kind string, d time.Duration) {
	if s.recorder != nil {
		s.recorder.Record(kind, d)
	}
}
