package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mweiler/datachat-go/internal/chat"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversation threads",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations for the current project",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := store.RefreshConversations(ctx); err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}

		convs := store.Conversations()
		if len(convs) == 0 {
			fmt.Println("No conversations yet. Start one with 'datachat ask'.")
			return nil
		}
		for _, conv := range convs {
			title := conv.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%-12s  %-50s  %3d messages  %s\n",
				conv.ID, truncate(title, 50), conv.MessageCount,
				conv.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openConversationWithRetry(ctx, args[0]); err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				return fmt.Errorf("conversation %s no longer exists", args[0])
			}
			return fmt.Errorf("load conversation: %w", err)
		}
		// Pull in side-loaded charts before printing.
		if err := store.RefreshVisualizations(ctx); err != nil {
			logger.Warn("visualization fetch failed", "error", err)
		}

		for _, msg := range store.Messages() {
			role := "AI"
			if msg.Role == chat.RoleHuman {
				role = "You"
			}
			marker := ""
			if msg.Important {
				marker = " ★"
			}
			if msg.IsError {
				marker = " (error)"
			}
			fmt.Printf("[%s] %s%s\n%s\n\n", msg.CreatedAt.Local().Format("15:04"), role, marker, msg.Content)
			if msg.Visualization != nil && msg.Visualization.Type != "" {
				fmt.Printf("  [%s chart: %s]\n\n", msg.Visualization.Type, msg.Visualization.Title)
			}
		}
		return nil
	},
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(args[1]) == "" {
			return fmt.Errorf("title must not be empty")
		}
		if err := store.RenameConversation(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		fmt.Printf("Renamed %s\n", args[0])
		return nil
	},
}

var conversationsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.DeleteConversation(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	conversationsCmd.AddCommand(conversationsRmCmd)
}

// truncate cuts a string for column display.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
