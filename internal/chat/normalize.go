package chat

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// RawMessage is a server message record before normalization. The backend
// is inconsistent about field spelling (camelCase vs snake_case) and about
// how it encodes chart payloads, so every variant gets its own field and
// the Normalizer applies a fixed resolution order: camelCase, then
// snake_case, then a computed default.
type RawMessage struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`

	Role    string `json:"role"`
	Content string `json:"content"`

	ConversationID      string `json:"conversationId"`
	ConversationIDSnake string `json:"conversation_id"`

	CreatedAt      string `json:"createdAt"`
	CreatedAtSnake string `json:"created_at"`

	QueryType      string `json:"queryType"`
	QueryTypeSnake string `json:"query_type"`

	GeneratedSQL      string `json:"generatedSql"`
	GeneratedSQLSnake string `json:"generated_sql"`

	Important      FlexBool `json:"isImportant"`
	ImportantSnake FlexBool `json:"is_important"`

	// Chart payload variants. Visualization wins when present; otherwise
	// ChartData is either a JSON-encoded object or the raw image payload.
	Visualization *Visualization `json:"visualization"`
	ChartData     string         `json:"chart_data"`
	ChartType     string         `json:"chart_type"`
	Title         string         `json:"title"`
	QueryUsed     string         `json:"query_used"`
}

// RawConversation is a conversation record as returned by the list and
// history endpoints.
type RawConversation struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
	MessageCount int      `json:"message_count"`
	Status       string   `json:"status"`
	Archived     FlexBool `json:"is_archived"`
}

// RawVisualization is one entry of the side-loaded visualization list.
type RawVisualization struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	ChartType string `json:"chart_type"`
	ChartData string `json:"chart_data"`
	Title     string `json:"title"`
	QueryUsed string `json:"query_used"`
	CreatedAt string `json:"created_at"`
}

// FlexBool decodes the backend's boolean-ish values: true/false, 0/1,
// "0"/"1", "true"/"false".
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*b = true
	case "false", "0", "", "null":
		*b = false
	default:
		// Unknown spellings read as false rather than failing the record.
		*b = false
	}
	return nil
}

// timeLayouts are the timestamp formats the backend has been observed to
// emit, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Normalizer converts heterogeneous server payload shapes into canonical
// Message and Conversation records.
type Normalizer struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewNormalizer creates a Normalizer. A nil logger discards drop logs.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{logger: logger, now: time.Now}
}

// Message normalizes a single raw record. The second return value is false
// when the record carries no resolvable identifier; such records are logged
// and dropped rather than failing the batch.
func (n *Normalizer) Message(raw RawMessage) (Message, bool) {
	id := firstNonEmpty(raw.ID, raw.MessageID)
	if id == "" {
		n.logger.Warn("dropping message without identifier", "role", raw.Role)
		return Message{}, false
	}

	msg := Message{
		ID:             id,
		ConversationID: firstNonEmpty(raw.ConversationID, raw.ConversationIDSnake),
		Role:           normalizeRole(raw.Role),
		Content:        raw.Content,
		CreatedAt:      n.resolveTime(raw.CreatedAt, raw.CreatedAtSnake),
		QueryType:      firstNonEmpty(raw.QueryType, raw.QueryTypeSnake),
		GeneratedSQL:   firstNonEmpty(raw.GeneratedSQL, raw.GeneratedSQLSnake),
		Important:      bool(raw.Important) || bool(raw.ImportantSnake),
		Visualization:  extractVisualization(raw),
	}
	return msg, true
}

// Messages normalizes a batch, silently filtering records that could not be
// normalized.
func (n *Normalizer) Messages(raws []RawMessage) []Message {
	msgs := make([]Message, 0, len(raws))
	for _, raw := range raws {
		if msg, ok := n.Message(raw); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Conversation normalizes a raw conversation record.
func (n *Normalizer) Conversation(raw RawConversation) (Conversation, bool) {
	if raw.ID == "" {
		n.logger.Warn("dropping conversation without identifier", "title", raw.Title)
		return Conversation{}, false
	}
	return Conversation{
		ID:           raw.ID,
		Title:        raw.Title,
		CreatedAt:    n.resolveTime(raw.CreatedAt, ""),
		UpdatedAt:    parseTimeOrZero(raw.UpdatedAt),
		MessageCount: raw.MessageCount,
		Status:       raw.Status,
		Archived:     bool(raw.Archived),
	}, true
}

// Conversations normalizes a batch of conversation records.
func (n *Normalizer) Conversations(raws []RawConversation) []Conversation {
	convs := make([]Conversation, 0, len(raws))
	for _, raw := range raws {
		if conv, ok := n.Conversation(raw); ok {
			convs = append(convs, conv)
		}
	}
	return convs
}

// Visualization normalizes a side-loaded visualization entry. Entries with
// no message linkage are dropped since they can never be attached.
func (n *Normalizer) Visualization(raw RawVisualization) (string, Visualization, bool) {
	if raw.MessageID == "" {
		n.logger.Warn("dropping visualization without message id", "id", raw.ID)
		return "", Visualization{}, false
	}
	return raw.MessageID, decodeChartPayload(raw.ChartData, raw.ChartType, raw.Title, raw.QueryUsed), true
}

// extractVisualization resolves the chart payload for a message. An
// explicit visualization object wins; otherwise chart_data is decoded,
// which may itself be a JSON-encoded object or the raw image payload.
func extractVisualization(raw RawMessage) *Visualization {
	if raw.Visualization != nil {
		return raw.Visualization
	}
	if raw.ChartData == "" {
		return nil
	}
	vis := decodeChartPayload(raw.ChartData, raw.ChartType, raw.Title, raw.QueryUsed)
	return &vis
}

// decodeChartPayload handles servers that double-encode chart payloads as
// JSON-in-string and servers that send the image payload directly. Missing
// pieces of a parsed object fall back to the sibling fields.
func decodeChartPayload(chartData, siblingType, siblingTitle, siblingQuery string) Visualization {
	var parsed struct {
		Type  string `json:"type"`
		Data  string `json:"data"`
		Title string `json:"title"`
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(chartData), &parsed); err == nil {
		return Visualization{
			Type:  firstNonEmpty(parsed.Type, siblingType),
			Data:  firstNonEmpty(parsed.Data, chartData),
			Title: firstNonEmpty(parsed.Title, siblingTitle),
			Query: firstNonEmpty(parsed.Query, siblingQuery),
		}
	}
	return Visualization{
		Type:  siblingType,
		Data:  chartData,
		Title: siblingTitle,
		Query: siblingQuery,
	}
}

// resolveTime parses the first usable timestamp, falling back to the local
// clock when neither variant parses. The fallback is local truth, not
// server truth; confirmation paths overwrite it.
func (n *Normalizer) resolveTime(camel, snake string) time.Time {
	if t := parseTimeOrZero(camel); !t.IsZero() {
		return t
	}
	if t := parseTimeOrZero(snake); !t.IsZero() {
		return t
	}
	return n.now()
}

// ParseTimestamp parses a wire timestamp in any of the formats the backend
// emits, returning the zero time when it cannot.
func ParseTimestamp(s string) time.Time {
	return parseTimeOrZero(s)
}

func parseTimeOrZero(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	// Some endpoints send unix seconds.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

func normalizeRole(role string) Role {
	switch strings.ToLower(role) {
	case "human", "user":
		return RoleHuman
	default:
		return RoleAI
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
