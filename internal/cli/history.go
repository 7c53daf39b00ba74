package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/voxbridge/voxbridge/internal/llm"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the server-side conversation transcript",
	RunE:  runHistory,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the server-side conversation transcript",
	RunE:  runClear,
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	history, err := c.GetHistory(cmd.Context())
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}

	if len(history) == 0 {
		fmt.Println("No messages.")
		return nil
	}
	for _, msg := range history {
		fmt.Println(formatMessage(msg))
	}
	return nil
}

func formatMessage(msg llm.Message) string {
	label := strings.ToUpper(msg.Role)
	if msg.Role == llm.RoleAssistant && len(msg.ToolCalls) > 0 {
		names := make([]string, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			names[i] = tc.Function.Name
		}
		return fmt.Sprintf("[%s] %s (tool calls: %s)", label, msg.Content, strings.Join(names, ", "))
	}
	return fmt.Sprintf("[%s] %s", label, msg.Content)
}

func runClear(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.ClearHistory(cmd.Context()); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	fmt.Println("History cleared.")
	return nil
}
