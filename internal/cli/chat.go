package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mweiler/datachat-go/internal/chat"
)

var chatConversation string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat view",
	Long: `Open the interactive chat view.

Keys:
  enter    send the typed question
  esc      cancel the in-flight question
  ctrl+n   start a new conversation
  ctrl+s   toggle importance of the latest AI answer
  ctrl+r   refresh the conversation list
  ctrl+c   quit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "open an existing conversation")
}

// chatTheme holds the color scheme for the chat view.
type chatTheme struct {
	Human  lipgloss.Color
	AI     lipgloss.Color
	Error  lipgloss.Color
	Hint   lipgloss.Color
	Accent lipgloss.Color
}

var defaultChatTheme = chatTheme{
	Human:  lipgloss.Color("#5FAFD7"), // light blue
	AI:     lipgloss.Color("#00D787"), // green
	Error:  lipgloss.Color("#FF005F"), // red
	Hint:   lipgloss.Color("#6C6C6C"), // dim gray
	Accent: lipgloss.Color("#AF87FF"), // violet
}

func (t chatTheme) humanStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Human).Bold(true)
}

func (t chatTheme) aiStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.AI).Bold(true)
}

func (t chatTheme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error)
}

func (t chatTheme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t chatTheme) accentStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent)
}

// turnDoneMsg reports a completed (or failed/cancelled) send.
type turnDoneMsg struct{ err error }

// historyDoneMsg reports a completed history load.
type historyDoneMsg struct{ err error }

// listDoneMsg reports a completed conversation list refresh.
type listDoneMsg struct{ err error }

// visDoneMsg reports a completed visualization side-load.
type visDoneMsg struct{ err error }

// chatModel is the bubbletea model for the chat view. All conversation
// state lives in the store; the model only reads snapshots and issues
// operations as commands.
type chatModel struct {
	store *chat.Store
	input textinput.Model
	spin  spinner.Model
	theme chatTheme

	width   int
	height  int
	sending bool
	notice  string
}

func newChatModel(store *chat.Store) chatModel {
	input := textinput.New()
	input.Placeholder = "Ask about your data..."
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return chatModel{
		store: store,
		input: input,
		spin:  spin,
		theme: defaultChatTheme,
		width: 80,
	}
}

// Init kicks off the background loads: conversation list, and history when
// a conversation was requested.
func (m chatModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refreshList()}
	if chatConversation != "" {
		cmds = append(cmds, m.openConversation(chatConversation))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.sending {
				return m, nil
			}
			m.input.SetValue("")
			m.sending = true
			m.notice = ""
			return m, tea.Batch(m.submit(query), m.spin.Tick)
		case "esc":
			if m.sending {
				m.store.CancelInFlight()
				m.sending = false
				m.notice = "cancelled"
			}
			return m, nil
		case "ctrl+n":
			m.store.StartNewConversation()
			m.notice = "new conversation"
			return m, nil
		case "ctrl+s":
			return m, m.toggleLatestImportance()
		case "ctrl+r":
			return m, m.refreshList()
		}

	case turnDoneMsg:
		m.sending = false
		if msg.err != nil {
			// The failure is already in the transcript as an error
			// message; nothing else to do here.
			return m, nil
		}
		// A fresh answer may have a chart arriving via the side-load
		// endpoint; fetch it in the background.
		return m, m.refreshVisualizations()

	case historyDoneMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
			return m, nil
		}
		return m, m.refreshVisualizations()

	case listDoneMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case visDoneMsg:
		// Merge already happened inside the store; a failure here is
		// non-fatal and the status field carries it.
		return m, nil

	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat view.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m chatModel) renderContent() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderTranscript())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.hintStyle().Render("enter send · esc cancel · ctrl+n new · ctrl+s star · ctrl+c quit"))
	return b.String()
}

func (m chatModel) renderHeader() string {
	title := "New conversation"
	if conv, ok := m.store.ActiveConversation(); ok && conv.Title != "" {
		title = conv.Title
	} else if id := m.store.ActiveConversationID(); id != "" {
		title = id
	}
	count := len(m.store.Conversations())
	header := m.theme.accentStyle().Render(title)
	return fmt.Sprintf("%s %s", header,
		m.theme.hintStyle().Render(fmt.Sprintf("(%d conversations)", count)))
}

func (m chatModel) renderTranscript() string {
	msgs := m.store.Messages()
	if len(msgs) == 0 {
		return m.theme.hintStyle().Render("No messages yet.")
	}

	// Show as many of the newest messages as fit.
	maxLines := m.height - 8
	if maxLines < 4 {
		maxLines = 4
	}
	var lines []string
	for _, msg := range msgs {
		lines = append(lines, m.renderMessage(msg)...)
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}

func (m chatModel) renderMessage(msg chat.Message) []string {
	label := m.theme.aiStyle().Render("AI")
	if msg.Role == chat.RoleHuman {
		label = m.theme.humanStyle().Render("You")
	}
	if msg.Important {
		label += " ★"
	}
	if !msg.Confirmed() && msg.Role == chat.RoleHuman {
		label += m.theme.hintStyle().Render(" (sending)")
	}

	content := msg.Content
	if msg.IsError {
		content = m.theme.errorStyle().Render(content)
	}

	lines := []string{label}
	lines = append(lines, wrapText(content, m.width-2)...)
	if msg.Visualization != nil && msg.Visualization.Type != "" {
		lines = append(lines, m.theme.accentStyle().Render(
			fmt.Sprintf("[%s chart: %s]", msg.Visualization.Type, msg.Visualization.Title)))
	}
	lines = append(lines, "")
	return lines
}

func (m chatModel) renderStatus() string {
	if m.sending {
		return m.spin.View() + m.theme.hintStyle().Render(" thinking...")
	}
	if m.notice != "" {
		return m.theme.hintStyle().Render(m.notice)
	}
	return ""
}

// submit runs the turn in a command goroutine; the optimistic human
// message is visible in snapshots immediately.
func (m chatModel) submit(query string) tea.Cmd {
	return func() tea.Msg {
		err := m.store.SubmitQuery(context.Background(), query)
		return turnDoneMsg{err: err}
	}
}

func (m chatModel) openConversation(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return historyDoneMsg{err: openConversationWithRetry(ctx, id)}
	}
}

func (m chatModel) refreshList() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return listDoneMsg{err: m.store.RefreshConversations(ctx)}
	}
}

func (m chatModel) refreshVisualizations() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return visDoneMsg{err: m.store.RefreshVisualizations(ctx)}
	}
}

// toggleLatestImportance stars or unstars the newest confirmed AI answer.
func (m chatModel) toggleLatestImportance() tea.Cmd {
	msgs := m.store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAI && msgs[i].Confirmed() && !msgs[i].IsError {
			id := msgs[i].ID
			return func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				// Rollback on failure happens inside the store.
				_ = m.store.ToggleImportance(ctx, id)
				return visDoneMsg{}
			}
		}
	}
	return nil
}

// wrapText is a minimal word wrapper for transcript lines.
func wrapText(s string, width int) []string {
	if width < 20 {
		width = 20
	}
	var lines []string
	for _, paragraph := range strings.Split(s, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, word := range words[1:] {
			if len(line)+1+len(word) > width {
				lines = append(lines, line)
				line = word
				continue
			}
			line += " " + word
		}
		lines = append(lines, line)
	}
	return lines
}

func runChat(cmd *cobra.Command, args []string) error {
	p := tea.NewProgram(newChatModel(store))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
