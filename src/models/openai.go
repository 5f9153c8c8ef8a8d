package models

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/sashabaranov/go-openai"
)

type OpenAIOracle struct {
	Client *openai.Client
	Model  string
}

func NewOpenAIOracle(model string) *OpenAIOracle {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	return &OpenAIOracle{Client: openai.NewClient(apiKey), Model: model}
}

func (o *OpenAIOracle) Complete(ctx context.Context, transcript []Message, opts Options) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(transcript)),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxOutputTokens,
	}
	for _, m := range transcript {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}
	for _, t := range opts.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaOrEmpty(t.Parameters),
			},
		})
	}

	resp, err := o.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, &OracleError{Op: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return Completion{}, &OracleError{Op: "openai", Err: errors.New("no response from OpenAI")}
	}

	msg := resp.Choices[0].Message
	out := Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		call := ToolCall{Name: tc.Function.Name}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
				return Completion{}, &OracleError{Op: "openai tool call", Raw: tc.Function.Arguments, Err: err}
			}
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

func openAIRole(r Role) string {
	switch r {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func schemaOrEmpty(params map[string]any) map[string]any {
	if len(params) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return params
}

var _ Oracle = (*OpenAIOracle)(nil)
