package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	// Configuration interface the chatbot backend depends on
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_config",
		Description: "Get current configuration. Available sections: 'openai', 'chatbot', 'logging'. If section is provided, returns only that section",
	}, NewGetConfigHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_config_version",
		Description: "Get current configuration version for efficient change detection",
	}, NewGetConfigVersionHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_config",
		Description: "Update a configuration value. Use section='openai', key='temperature', value='0.7'. Value is parsed as JSON when possible",
	}, NewUpdateConfigHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_config_keys",
		Description: "List all configuration keys, optionally within one section",
	}, NewListConfigKeysHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_config",
		Description: "Save current configuration to a YAML file",
	}, NewSaveConfigHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_config",
		Description: "Load configuration from a YAML file",
	}, NewLoadConfigHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_config",
		Description: "Reset configuration to default values",
	}, NewResetConfigHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_defaults",
		Description: "Load the default configuration file",
	}, NewLoadDefaultsHandler(deps))

	// Demo tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_time",
		Description: "Get the current time",
	}, NewGetTimeHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echo back the input message",
	}, NewEchoHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "calculate",
		Description: "Perform basic arithmetic",
	}, NewCalculateHandler(deps))
}
