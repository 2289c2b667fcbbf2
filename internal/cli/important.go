package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mweiler/datachat-go/internal/chat"
)

var importantCmd = &cobra.Command{
	Use:   "important",
	Short: "List messages marked important",
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := store.ImportantMessages(cmd.Context())
		if err != nil {
			return fmt.Errorf("list important messages: %w", err)
		}
		if len(msgs) == 0 {
			fmt.Println("No important messages. Mark one in the chat view with ctrl+s.")
			return nil
		}
		for _, msg := range msgs {
			role := "AI"
			if msg.Role == chat.RoleHuman {
				role = "You"
			}
			fmt.Printf("★ [%s] %s (%s)\n  %s\n\n",
				msg.CreatedAt.Local().Format("2006-01-02 15:04"), role,
				msg.ConversationID, truncate(msg.Content, 120))
		}
		return nil
	},
}
