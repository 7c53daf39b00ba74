package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TimeInput is the empty input schema for the get_time tool.
type TimeInput struct{}

// NewGetTimeHandler reports the current local time.
func NewGetTimeHandler(deps *Dependencies) mcp.ToolHandlerFor[TimeInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ TimeInput) (*mcp.CallToolResult, any, error) {
		return TextResult(time.Now().Format("2006-01-02 15:04:05")), nil, nil
	}
}

// EchoInput defines the input schema for the echo tool.
type EchoInput struct {
	Message string `json:"message" jsonschema:"Text to echo back"`
}

// NewEchoHandler echoes the input message.
func NewEchoHandler(deps *Dependencies) mcp.ToolHandlerFor[EchoInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input EchoInput) (*mcp.CallToolResult, any, error) {
		if deps != nil && deps.Logger != nil {
			deps.Logger.Debug("echo tool called", "message", input.Message)
		}
		return TextResult(input.Message), nil, nil
	}
}

// CalculateInput defines the input schema for the calculate tool.
type CalculateInput struct {
	Operation string  `json:"operation" jsonschema:"One of add, subtract, multiply, divide"`
	A         float64 `json:"a" jsonschema:"First operand"`
	B         float64 `json:"b" jsonschema:"Second operand"`
}

// NewCalculateHandler performs basic arithmetic. Errors are returned as tool
// results so the model can correct itself.
func NewCalculateHandler(deps *Dependencies) mcp.ToolHandlerFor[CalculateInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CalculateInput) (*mcp.CallToolResult, any, error) {
		var result float64
		switch input.Operation {
		case "add":
			result = input.A + input.B
		case "subtract":
			result = input.A - input.B
		case "multiply":
			result = input.A * input.B
		case "divide":
			if input.B == 0 {
				return ErrorResult("division by zero", ""), nil, nil
			}
			result = input.A / input.B
		default:
			return ErrorResult(fmt.Sprintf("unknown operation: %s", input.Operation), "Use add, subtract, multiply or divide"), nil, nil
		}
		return TextResult(formatNumber(result)), nil, nil
	}
}

func formatNumber(f float64) string {
	return fmt.Sprintf("%g", f)
}
