package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the active backend configuration",
	RunE:  runConfig,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the server",
	RunE:  runPing,
}

func runConfig(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, err := c.GetConfig(cmd.Context())
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runPing(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Println("pong")
	return nil
}
