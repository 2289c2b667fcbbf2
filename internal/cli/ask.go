package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mweiler/datachat-go/internal/chat"
)

var (
	askConversation string
	askStream       bool
	askVisualize    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a question about your project's data",
	Long: `Ask a natural-language question and print the AI answer.

Without --conversation a new thread is started; the server assigns its id,
which is printed so you can continue the thread later.

Examples:
  datachat ask "What were Q1 sales?"
  datachat ask "Break that down by region" --conversation c_8f2e
  datachat ask "Plot revenue by month" --visualize
  datachat ask "Summarize churn drivers" --stream`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "continue an existing conversation")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer token by token")
	askCmd.Flags().BoolVar(&askVisualize, "visualize", false, "ask for a chart visualization")
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := args[0]
	ctx := cmd.Context()

	if askConversation != "" {
		if err := openConversationWithRetry(ctx, askConversation); err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				return fmt.Errorf("conversation %s no longer exists", askConversation)
			}
			return fmt.Errorf("load conversation: %w", err)
		}
	}

	switch {
	case askStream:
		if err := runStreamingAsk(ctx, query); err != nil {
			return err
		}
	case askVisualize:
		if err := store.GenerateVisualization(ctx, query); err != nil {
			return fmt.Errorf("generate visualization: %w", err)
		}
	default:
		if err := store.SubmitQuery(ctx, query); err != nil {
			return fmt.Errorf("ask: %w", err)
		}
	}

	printLatestAnswer()
	return nil
}

// runStreamingAsk drives a turn over the websocket endpoint, printing
// tokens as they arrive. The final frame commits through the same
// reconciliation as a non-streamed turn.
func runStreamingAsk(ctx context.Context, query string) error {
	store.BeginTurn(query)
	resp, err := apiClient.SendTurnStream(ctx, query, store.ActiveConversationID(), cfg.ProjectID,
		func(token string) error {
			fmt.Print(token)
			return nil
		})
	fmt.Println()
	if err != nil {
		store.FailTurn(err.Error())
		return fmt.Errorf("stream: %w", err)
	}
	store.ApplyTurn(*resp)
	return nil
}

// printLatestAnswer writes the newest AI message and thread id to stdout.
func printLatestAnswer() {
	msgs := store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.Role != chat.RoleAI {
			continue
		}
		if !askStream {
			fmt.Println(msg.Content)
		}
		if msg.Visualization != nil && msg.Visualization.Type != "" {
			fmt.Printf("\n[%s chart: %s, %d bytes of data]\n",
				msg.Visualization.Type, msg.Visualization.Title, len(msg.Visualization.Data))
		}
		break
	}
	if id := store.ActiveConversationID(); id != "" {
		fmt.Printf("\nconversation: %s\n", id)
	}
}

// openConversationWithRetry loads history with a small bounded retry on
// transient failures. Terminal not-found is returned immediately so the
// caller redirects instead of retrying.
func openConversationWithRetry(ctx context.Context, conversationID string) error {
	backoff := 500 * time.Millisecond
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		err = store.OpenConversation(ctx, conversationID)
		if err == nil {
			return nil
		}
		if !chat.IsTransient(err) {
			return err
		}
		logger.Warn("history fetch failed, retrying", "conversation", conversationID, "attempt", attempt+1, "error", err)
	}
	return err
}
