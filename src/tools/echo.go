package tools

import (
	"context"
	"strings"
)

// EchoTool repeats the provided input. Useful for testing tool wiring.
type EchoTool struct{}

func (e *EchoTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "echo",
		Description: "Echoes the provided text back to the caller.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string", "description": "Text to echo."},
			},
			"required": []any{"text"},
		},
	}
}

func (e *EchoTool) Invoke(_ context.Context, req ToolRequest) (ToolResponse, error) {
	text, err := stringArg(req.Arguments, "text")
	if err != nil {
		return ToolResponse{}, err
	}
	return ToolResponse{Content: strings.TrimSpace(text)}, nil
}
