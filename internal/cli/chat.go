package cli

import (
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the voxbridge server.

Assistant replies stream into the transcript as they are generated.
Press Enter to send, Esc or Ctrl+C to quit.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	model := newChatModel(c)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		exitWithError("chat session failed: %v", err)
	}
	return nil
}
