package models

import (
	"context"
	"fmt"
	"strings"
)

// defaultModels is used when no model is configured for a provider.
var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-2.5-flash",
	"google":    "gemini-2.5-flash",
	"ollama":    "llama3.2",
	"anthropic": "claude-3-5-haiku-latest",
	"claude":    "claude-3-5-haiku-latest",
}

// DefaultModel returns the model used for provider when none is set, or "".
func DefaultModel(provider string) string {
	return defaultModels[strings.ToLower(strings.TrimSpace(provider))]
}

// NewOracle returns a concrete Oracle for provider. An empty model falls back
// to DefaultModel.
func NewOracle(ctx context.Context, provider string, model string) (Oracle, error) {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel(provider)
	}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return NewOpenAIOracle(model), nil
	case "gemini", "google":
		return NewGeminiOracle(ctx, model)
	case "ollama":
		return NewOllamaOracle(model)
	case "anthropic", "claude":
		return NewAnthropicOracle(model), nil
	case "dummy":
		return NewDummyOracle(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// Ask sends prompt as a single user message and returns the trimmed reply text.
func Ask(ctx context.Context, oracle Oracle, prompt string, opts Options) (string, error) {
	return AskWithSystem(ctx, oracle, "", prompt, opts)
}

// AskWithSystem is Ask with an optional system instruction in front of the prompt.
func AskWithSystem(ctx context.Context, oracle Oracle, system, prompt string, opts Options) (string, error) {
	transcript := make([]Message, 0, 2)
	if strings.TrimSpace(system) != "" {
		transcript = append(transcript, Message{Role: RoleSystem, Content: system})
	}
	transcript = append(transcript, Message{Role: RoleUser, Content: prompt})

	res, err := oracle.Complete(ctx, transcript, opts)
	if err != nil {
		return "", AsOracleError("complete", err)
	}
	text := strings.TrimSpace(res.Content)
	if text == "" {
		return "", &OracleError{Op: "complete", Err: ErrEmptyCompletion}
	}
	return text, nil
}

// splitSystem separates system messages from the conversational turns. Providers
// with a dedicated system field take the joined system text.
func splitSystem(transcript []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(transcript))
	for _, m := range transcript {
		if m.Role == RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// lastUserContent returns the text of the final non-empty user turn.
func lastUserContent(transcript []Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role != RoleUser {
			continue
		}
		if s := strings.TrimSpace(transcript[i].Content); s != "" {
			return s
		}
	}
	return ""
}
