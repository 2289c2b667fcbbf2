package chat

import (
	"log/slog"
	"sort"
	"strings"
	"time"
)

// DefaultRecentConversationWindow is how long a locally-created
// conversation survives absence from a server snapshot. Replication lag
// right after creation can make a brand-new conversation briefly invisible
// to the list endpoint; inside this window absence is not treated as
// deletion. The exact value is a heuristic, not a protocol guarantee.
const DefaultRecentConversationWindow = 30 * time.Second

// placeholderTitles are generic titles a backend assigns before a real one
// exists. An upsert never replaces a real title with one of these.
var placeholderTitles = map[string]bool{
	"":                 true,
	"new conversation": true,
	"untitled":         true,
}

// Registry holds the authoritative, deduplicated, filtered, sorted list of
// conversations for a project. The server snapshot is the source of truth;
// the registry only shields the active conversation and very recently
// created ones from snapshot churn.
type Registry struct {
	conversations []Conversation
	firstSeen     map[string]time.Time

	recentWindow time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewRegistry creates a Registry. recentWindow <= 0 selects the default.
func NewRegistry(recentWindow time.Duration, logger *slog.Logger) *Registry {
	if recentWindow <= 0 {
		recentWindow = DefaultRecentConversationWindow
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		firstSeen:    make(map[string]time.Time),
		recentWindow: recentWindow,
		now:          time.Now,
		logger:       logger,
	}
}

// ReplaceFromServer reconciles a fresh server snapshot against the
// locally-held list. Deleted and archived entries are dropped unless they
// are the active conversation, duplicates keep the first occurrence, and
// the result is sorted most-recently-updated first. Local conversations
// absent from the snapshot survive only if active or created within the
// recent window; everything else is treated as deleted.
func (r *Registry) ReplaceFromServer(fresh []Conversation, activeID string) {
	now := r.now()

	seen := make(map[string]bool, len(fresh))
	next := make([]Conversation, 0, len(fresh))
	for _, conv := range fresh {
		if conv.ID == "" || seen[conv.ID] {
			continue
		}
		if (conv.Deleted() || conv.Archived) && conv.ID != activeID {
			continue
		}
		seen[conv.ID] = true
		next = append(next, conv)
	}

	dropped := 0
	for _, conv := range r.conversations {
		if seen[conv.ID] {
			continue
		}
		if conv.ID == activeID {
			// The viewer still has this thread open; never yank it.
			seen[conv.ID] = true
			next = append(next, conv)
			continue
		}
		if first, ok := r.firstSeen[conv.ID]; ok && now.Sub(first) < r.recentWindow {
			seen[conv.ID] = true
			next = append(next, conv)
			continue
		}
		dropped++
		delete(r.firstSeen, conv.ID)
	}
	if dropped > 0 {
		r.logger.Debug("dropped conversations absent from server snapshot", "count", dropped)
	}

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].sortTime().After(next[j].sortTime())
	})
	r.conversations = next
}

// UpsertOptimistic inserts a conversation the client just learned about
// from a message-send response, before any list refresh confirms it. On an
// ID collision fields are merged, keeping the existing title when the new
// one is a generic placeholder, and the entry moves to the front.
func (r *Registry) UpsertOptimistic(conv Conversation) {
	if conv.ID == "" {
		return
	}
	if _, ok := r.firstSeen[conv.ID]; !ok {
		r.firstSeen[conv.ID] = r.now()
	}

	for i, existing := range r.conversations {
		if existing.ID != conv.ID {
			continue
		}
		merged := conv
		if isPlaceholderTitle(conv.Title) && existing.Title != "" {
			merged.Title = existing.Title
		}
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = existing.CreatedAt
		}
		if merged.MessageCount < existing.MessageCount {
			merged.MessageCount = existing.MessageCount
		}
		r.conversations = append(r.conversations[:i], r.conversations[i+1:]...)
		r.conversations = append([]Conversation{merged}, r.conversations...)
		return
	}

	r.conversations = append([]Conversation{conv}, r.conversations...)
}

// Remove drops a conversation locally, after a confirmed delete.
func (r *Registry) Remove(id string) {
	for i, conv := range r.conversations {
		if conv.ID == id {
			r.conversations = append(r.conversations[:i], r.conversations[i+1:]...)
			break
		}
	}
	delete(r.firstSeen, id)
}

// Rename updates a conversation title locally, after a confirmed rename.
func (r *Registry) Rename(id, title string) {
	for i := range r.conversations {
		if r.conversations[i].ID == id {
			r.conversations[i].Title = title
			return
		}
	}
}

// Get returns the conversation with the given id.
func (r *Registry) Get(id string) (Conversation, bool) {
	for _, conv := range r.conversations {
		if conv.ID == id {
			return conv, true
		}
	}
	return Conversation{}, false
}

// Snapshot returns a copy of the current conversation list.
func (r *Registry) Snapshot() []Conversation {
	out := make([]Conversation, len(r.conversations))
	copy(out, r.conversations)
	return out
}

func isPlaceholderTitle(title string) bool {
	return placeholderTitles[strings.ToLower(strings.TrimSpace(title))]
}
