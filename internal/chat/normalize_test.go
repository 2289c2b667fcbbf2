package chat

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizerMessageFieldResolution(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		name string
		raw  RawMessage
		want Message
		ok   bool
	}{
		{
			name: "camelCase fields win",
			raw: RawMessage{
				ID:                  "m1",
				Role:                "ai",
				Content:             "answer",
				ConversationID:      "c1",
				ConversationIDSnake: "c-ignored",
				QueryType:           "sql",
				QueryTypeSnake:      "ignored",
			},
			want: Message{ID: "m1", Role: RoleAI, Content: "answer", ConversationID: "c1", QueryType: "sql"},
			ok:   true,
		},
		{
			name: "snake_case fills gaps",
			raw: RawMessage{
				MessageID:           "m2",
				Role:                "user",
				ConversationIDSnake: "c2",
				GeneratedSQLSnake:   "SELECT 1",
			},
			want: Message{ID: "m2", Role: RoleHuman, ConversationID: "c2", GeneratedSQL: "SELECT 1"},
			ok:   true,
		},
		{
			name: "no identifier drops the record",
			raw:  RawMessage{Role: "ai", Content: "orphan"},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Message(tt.raw)
			if ok != tt.ok {
				t.Fatalf("Message() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.ID != tt.want.ID || got.Role != tt.want.Role ||
				got.ConversationID != tt.want.ConversationID ||
				got.QueryType != tt.want.QueryType ||
				got.GeneratedSQL != tt.want.GeneratedSQL {
				t.Errorf("Message() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizerMessagesFiltersDrops(t *testing.T) {
	n := NewNormalizer(nil)
	raws := []RawMessage{
		{ID: "m1", Role: "human", Content: "q"},
		{Role: "ai", Content: "no id"},
		{MessageID: "m2", Role: "ai", Content: "a"},
	}
	got := n.Messages(raws)
	if len(got) != 2 {
		t.Fatalf("Messages() returned %d messages, want 2", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Errorf("Messages() ids = %q, %q; want m1, m2", got[0].ID, got[1].ID)
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"human", RoleHuman},
		{"user", RoleHuman},
		{"Human", RoleHuman},
		{"ai", RoleAI},
		{"assistant", RoleAI},
		{"", RoleAI},
	}
	for _, tt := range tests {
		if got := normalizeRole(tt.in); got != tt.want {
			t.Errorf("normalizeRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFlexBool(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"bool true", `{"isImportant": true}`, true},
		{"bool false", `{"isImportant": false}`, false},
		{"number one", `{"isImportant": 1}`, true},
		{"number zero", `{"isImportant": 0}`, false},
		{"string one", `{"isImportant": "1"}`, true},
		{"string true", `{"isImportant": "true"}`, true},
		{"null", `{"isImportant": null}`, false},
		{"absent", `{}`, false},
		{"garbage reads false", `{"isImportant": "maybe"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw RawMessage
			if err := json.Unmarshal([]byte(tt.in), &raw); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if bool(raw.Important) != tt.want {
				t.Errorf("Important = %v, want %v", raw.Important, tt.want)
			}
		})
	}
}

func TestExtractVisualization(t *testing.T) {
	tests := []struct {
		name string
		raw  RawMessage
		want *Visualization
	}{
		{
			name: "explicit object wins",
			raw: RawMessage{
				ID:            "m1",
				Visualization: &Visualization{Type: "bar", Data: "payload"},
				ChartData:     `{"type":"line","data":"other"}`,
			},
			want: &Visualization{Type: "bar", Data: "payload"},
		},
		{
			name: "chart_data as JSON-in-string",
			raw: RawMessage{
				ID:        "m2",
				ChartData: `{"type":"line","data":"abc123","title":"Revenue"}`,
			},
			want: &Visualization{Type: "line", Data: "abc123", Title: "Revenue"},
		},
		{
			name: "chart_data as raw payload with sibling fields",
			raw: RawMessage{
				ID:        "m3",
				ChartData: "iVBORw0KGgo=",
				ChartType: "png",
				Title:     "Chart",
				QueryUsed: "SELECT 1",
			},
			want: &Visualization{Type: "png", Data: "iVBORw0KGgo=", Title: "Chart", Query: "SELECT 1"},
		},
		{
			name: "parsed object falls back to siblings for missing fields",
			raw: RawMessage{
				ID:        "m4",
				ChartData: `{"data":"abc"}`,
				ChartType: "pie",
				Title:     "Split",
			},
			want: &Visualization{Type: "pie", Data: "abc", Title: "Split"},
		},
		{
			name: "no chart payload",
			raw:  RawMessage{ID: "m5"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractVisualization(tt.raw)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("extractVisualization() = %v, want %v", got, tt.want)
			}
			if got == nil {
				return
			}
			if *got != *tt.want {
				t.Errorf("extractVisualization() = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2026-03-01T12:30:00Z", time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"rfc3339 nano", "2026-03-01T12:30:00.5Z", time.Date(2026, 3, 1, 12, 30, 0, 500_000_000, time.UTC)},
		{"no zone", "2026-03-01T12:30:00", time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"space separator", "2026-03-01 12:30:00", time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"unix seconds", "1770000000", time.Unix(1770000000, 0).UTC()},
		{"empty", "", time.Time{}},
		{"garbage", "yesterday", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveTimeFallsBackToClock(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	n := NewNormalizer(nil)
	n.now = func() time.Time { return fixed }

	msg, ok := n.Message(RawMessage{ID: "m1", Role: "human", Content: "q"})
	if !ok {
		t.Fatal("Message() dropped record with id")
	}
	if !msg.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want clock fallback %v", msg.CreatedAt, fixed)
	}

	// A parseable snake_case timestamp takes precedence over the clock.
	msg, _ = n.Message(RawMessage{ID: "m2", Role: "human", CreatedAtSnake: "2026-03-01T12:00:00Z"})
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !msg.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", msg.CreatedAt, want)
	}
}

func TestNormalizerConversation(t *testing.T) {
	n := NewNormalizer(nil)

	conv, ok := n.Conversation(RawConversation{
		ID:           "c1",
		Title:        "Revenue analysis",
		CreatedAt:    "2026-03-01T10:00:00Z",
		UpdatedAt:    "2026-03-01T11:00:00Z",
		MessageCount: 4,
		Status:       "deleted",
		Archived:     true,
	})
	if !ok {
		t.Fatal("Conversation() dropped record with id")
	}
	if !conv.Deleted() || !conv.Archived {
		t.Errorf("flags not preserved: %+v", conv)
	}
	if conv.MessageCount != 4 {
		t.Errorf("MessageCount = %d, want 4", conv.MessageCount)
	}

	if _, ok := n.Conversation(RawConversation{Title: "no id"}); ok {
		t.Error("Conversation() accepted record without id")
	}
}

func TestNormalizerVisualization(t *testing.T) {
	n := NewNormalizer(nil)

	id, vis, ok := n.Visualization(RawVisualization{
		MessageID: "m1",
		ChartType: "bar",
		ChartData: `{"type":"line","data":"abc"}`,
		Title:     "T",
	})
	if !ok {
		t.Fatal("Visualization() dropped entry with message id")
	}
	if id != "m1" {
		t.Errorf("message id = %q, want m1", id)
	}
	// The embedded JSON object's type wins over the sibling chart_type.
	if vis.Type != "line" || vis.Data != "abc" {
		t.Errorf("vis = %+v, want type=line data=abc", vis)
	}

	if _, _, ok := n.Visualization(RawVisualization{ID: "v1", ChartData: "x"}); ok {
		t.Error("Visualization() accepted entry without message id")
	}
}
