package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects visible to your account",
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := apiClient.Projects(cmd.Context())
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}
		for _, p := range projects {
			current := " "
			if p.ID == cfg.ProjectID {
				current = "*"
			}
			fmt.Printf("%s %-12s  %-30s  %d conversations\n", current, p.ID, truncate(p.Name, 30), p.ConversationCount)
		}
		return nil
	},
}
