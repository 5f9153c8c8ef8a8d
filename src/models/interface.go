package models

import "context"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a transcript sent to an Oracle.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolSchema advertises a callable tool to providers that support native tool calling.
// Parameters is a JSON-schema object.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Options tune a single completion.
type Options struct {
	Temperature     float64      `json:"temperature"`
	MaxOutputTokens int          `json:"max_output_tokens,omitempty"`
	Tools           []ToolSchema `json:"tools,omitempty"`
}

// Completion is the model's reply.
type Completion struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Oracle is the reasoning service consumed by workers, the forum host and the planner.
// Implementations own their own timeouts and retries.
type Oracle interface {
	Complete(ctx context.Context, transcript []Message, opts Options) (Completion, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, transcript []Message, opts Options) (Completion, error)

func (f OracleFunc) Complete(ctx context.Context, transcript []Message, opts Options) (Completion, error) {
	return f(ctx, transcript, opts)
}
