package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mweiler/datachat-go/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the server URL, project and API token",
	Long: `Interactively configure datachat. The token is read without echo and
written to the config file with owner-only permissions.`,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	file := config.ReadFile()
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("Server URL [%s]: ", file.ServerURL)
	if line, err := reader.ReadString('\n'); err == nil {
		if v := strings.TrimSpace(line); v != "" {
			file.ServerURL = v
		}
	}

	fmt.Printf("Project ID [%s]: ", file.ProjectID)
	if line, err := reader.ReadString('\n'); err == nil {
		if v := strings.TrimSpace(line); v != "" {
			file.ProjectID = v
		}
	}

	fmt.Print("API token (hidden): ")
	tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token := strings.TrimSpace(string(tokenBytes)); token != "" {
		file.Token = token
	}
	if file.Token == "" {
		exitWithError("a token is required; requests fail locally without one")
	}

	if err := config.Save(file); err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", config.Path())
	return nil
}
