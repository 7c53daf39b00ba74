// Package cli provides the command-line interface for the voxbridge chat
// client.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/voxbridge/voxbridge/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "voxbridge",
	Short: "Chat client for the voxbridge server",
	Long: `Voxbridge is a chat client for the voxbridge conversation server.

The server bridges a streaming completion API with MCP tool execution;
this client connects over WebSocket and streams assistant replies as
they are generated.`,
	Version: Version,
}

// newClient creates and connects a client using the global server flag.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	c := client.New(serverURL)
	if err := c.Connect(cmd.Context()); err != nil {
		return nil, fmt.Errorf("connect to server: %w", err)
	}
	return c, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server WebSocket URL (default ws://localhost:8000/ws)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pingCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
