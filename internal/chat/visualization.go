package chat

// DefaultVisualizationMinChars is the payload length below which an
// embedded visualization is treated as a placeholder. This is a heuristic
// against truncated or stubbed chart data, not a format guarantee from the
// server; it is tunable via configuration.
const DefaultVisualizationMinChars = 100

// Resolver maintains a side-loaded mapping from message identity to the
// best-known Visualization. The side-load endpoint can race with or follow
// chat-history loading, so Merge must be safe to run any number of times
// with the same inputs.
type Resolver struct {
	minChars  int
	byMessage map[string]Visualization
}

// NewResolver creates a Resolver. minChars <= 0 selects the default
// placeholder threshold.
func NewResolver(minChars int) *Resolver {
	if minChars <= 0 {
		minChars = DefaultVisualizationMinChars
	}
	return &Resolver{
		minChars:  minChars,
		byMessage: make(map[string]Visualization),
	}
}

// Put records a side-loaded visualization for a message. A longer payload
// always supersedes a shorter one already held for the same message.
func (r *Resolver) Put(messageID string, vis Visualization) {
	if messageID == "" {
		return
	}
	if existing, ok := r.byMessage[messageID]; ok && len(existing.Data) >= len(vis.Data) {
		return
	}
	r.byMessage[messageID] = vis
}

// Load ingests a batch of normalized side-load entries.
func (r *Resolver) Load(entries map[string]Visualization) {
	for id, vis := range entries {
		r.Put(id, vis)
	}
}

// Lookup returns the side-loaded visualization for a message, if any.
func (r *Resolver) Lookup(messageID string) (Visualization, bool) {
	vis, ok := r.byMessage[messageID]
	return vis, ok
}

// Merge attaches the best-known visualization to each message in place.
// The side-loaded record wins only when the embedded one is missing its
// payload or the payload is implausibly short; otherwise the embedded one
// is kept. Re-running with the same inputs produces the same result.
func (r *Resolver) Merge(msgs []Message) {
	for i := range msgs {
		msg := &msgs[i]
		side, ok := r.byMessage[msg.ID]
		if !ok {
			continue
		}
		if msg.Visualization == nil {
			vis := side
			msg.Visualization = &vis
			continue
		}
		if len(msg.Visualization.Data) < r.minChars && len(side.Data) > len(msg.Visualization.Data) {
			vis := side
			msg.Visualization = &vis
		}
	}
}

// Reset drops all side-loaded state, for use when switching projects.
func (r *Resolver) Reset() {
	r.byMessage = make(map[string]Visualization)
}
