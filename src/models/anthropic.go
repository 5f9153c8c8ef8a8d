package models

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicOracle implements Oracle using Anthropic's Messages API.
type AnthropicOracle struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropicOracle constructs a client. It reads ANTHROPIC_API_KEY from the env.
func NewAnthropicOracle(model string) *AnthropicOracle {
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
	)
	return &AnthropicOracle{
		Client:    &cl,
		Model:     model,
		MaxTokens: 1024,
	}
}

func (a *AnthropicOracle) Complete(ctx context.Context, transcript []Message, opts Options) (Completion, error) {
	system, turns := splitSystem(transcript)

	maxTokens := a.MaxTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
	}
	for _, t := range opts.Tools {
		props, _ := schemaOrEmpty(t.Parameters)["properties"].(map[string]any)
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: props},
			},
		})
	}

	msg, err := a.Client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, &OracleError{Op: "anthropic", Err: err}
	}

	var (
		b   strings.Builder
		out Completion
	)
	for _, cb := range msg.Content {
		switch block := cb.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			call := ToolCall{Name: block.Name}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &call.Arguments); err != nil {
					return Completion{}, &OracleError{Op: "anthropic tool call", Raw: string(block.Input), Err: err}
				}
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	out.Content = b.String()
	return out, nil
}

var _ Oracle = (*AnthropicOracle)(nil)
