package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GetConfigInput defines the input schema for the get_config tool.
type GetConfigInput struct {
	Section string `json:"section,omitempty" jsonschema:"Configuration section to return; omit for the full document"`
}

// NewGetConfigHandler returns the current configuration as JSON.
func NewGetConfigHandler(deps *Dependencies) mcp.ToolHandlerFor[GetConfigInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetConfigInput) (*mcp.CallToolResult, any, error) {
		out, err := deps.Store.ConfigJSON(input.Section)
		if err != nil {
			return ErrorResult(err.Error(), ""), nil, nil
		}
		return TextResult(out), nil, nil
	}
}

// VersionInput is the empty input schema for version and reset style tools.
type VersionInput struct{}

// NewGetConfigVersionHandler returns the version token used for cheap change
// detection.
func NewGetConfigVersionHandler(deps *Dependencies) mcp.ToolHandlerFor[VersionInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ VersionInput) (*mcp.CallToolResult, any, error) {
		return TextResult(deps.Store.Version()), nil, nil
	}
}

// UpdateConfigInput defines the input schema for the update_config tool.
type UpdateConfigInput struct {
	Section string `json:"section" jsonschema:"Section to update, e.g. openai, chatbot or logging"`
	Key     string `json:"key" jsonschema:"Key within the section"`
	Value   string `json:"value" jsonschema:"New value; parsed as JSON when possible"`
}

// NewUpdateConfigHandler changes one configuration value and persists it.
func NewUpdateConfigHandler(deps *Dependencies) mcp.ToolHandlerFor[UpdateConfigInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input UpdateConfigInput) (*mcp.CallToolResult, any, error) {
		msg, err := deps.Store.Update(input.Section, input.Key, input.Value)
		if err != nil {
			return ErrorResult(err.Error(), "Use list_config_keys to inspect the layout"), nil, nil
		}
		deps.Logger.Info("configuration updated", "section", input.Section, "key", input.Key)
		return TextResult(msg), nil, nil
	}
}

// FileInput defines the input schema for save_config and load_config.
type FileInput struct {
	Filepath string `json:"filepath,omitempty" jsonschema:"YAML file path; relative paths resolve next to the server config"`
}

// NewSaveConfigHandler writes the current configuration to a YAML file.
func NewSaveConfigHandler(deps *Dependencies) mcp.ToolHandlerFor[FileInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input FileInput) (*mcp.CallToolResult, any, error) {
		msg, err := deps.Store.Save(input.Filepath)
		if err != nil {
			return ErrorResult(err.Error(), ""), nil, nil
		}
		return TextResult(msg), nil, nil
	}
}

// NewLoadConfigHandler replaces the configuration from a YAML file.
func NewLoadConfigHandler(deps *Dependencies) mcp.ToolHandlerFor[FileInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input FileInput) (*mcp.CallToolResult, any, error) {
		msg, err := deps.Store.Load(input.Filepath)
		if err != nil {
			return ErrorResult(err.Error(), ""), nil, nil
		}
		deps.Logger.Info("configuration loaded from file", "filepath", input.Filepath)
		return TextResult(msg), nil, nil
	}
}

// NewResetConfigHandler restores the default configuration.
func NewResetConfigHandler(deps *Dependencies) mcp.ToolHandlerFor[VersionInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ VersionInput) (*mcp.CallToolResult, any, error) {
		msg, err := deps.Store.Reset()
		if err != nil {
			return ErrorResult(err.Error(), ""), nil, nil
		}
		return TextResult(msg), nil, nil
	}
}

// NewLoadDefaultsHandler re-reads the defaults file into the live
// configuration.
func NewLoadDefaultsHandler(deps *Dependencies) mcp.ToolHandlerFor[VersionInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ VersionInput) (*mcp.CallToolResult, any, error) {
		msg, err := deps.Store.LoadDefaults()
		if err != nil {
			return ErrorResult(err.Error(), ""), nil, nil
		}
		return TextResult(msg), nil, nil
	}
}

// NewListConfigKeysHandler lists sections and keys.
func NewListConfigKeysHandler(deps *Dependencies) mcp.ToolHandlerFor[GetConfigInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetConfigInput) (*mcp.CallToolResult, any, error) {
		out, err := deps.Store.ListKeys(input.Section)
		if err != nil {
			return ErrorResult(err.Error(), ""), nil, nil
		}
		return TextResult(out), nil, nil
	}
}
