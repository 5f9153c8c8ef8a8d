package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// ---------------------------- Ollama -----------------------------------------

type OllamaOracle struct {
	Client *ollama.Client
	Model  string
}

func NewOllamaOracle(model string) (*OllamaOracle, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
	}

	return &OllamaOracle{Client: ollama.NewClient(u, httpClient), Model: model}, nil
}

// Complete uses the chat endpoint. Tool schemas are not forwarded; callers that
// need structured actions ask for them in the prompt.
func (o *OllamaOracle) Complete(ctx context.Context, transcript []Message, opts Options) (Completion, error) {
	stream := false
	req := &ollama.ChatRequest{
		Model:    o.Model,
		Messages: make([]ollama.Message, 0, len(transcript)),
		Stream:   &stream,
		Options:  map[string]any{"temperature": opts.Temperature},
	}
	if opts.MaxOutputTokens > 0 {
		req.Options["num_predict"] = opts.MaxOutputTokens
	}
	for _, m := range transcript {
		req.Messages = append(req.Messages, ollama.Message{Role: string(m.Role), Content: m.Content})
	}

	var (
		text strings.Builder
		out  Completion
	)
	if err := o.Client.Chat(ctx, req, func(cr ollama.ChatResponse) error {
		text.WriteString(cr.Message.Content)
		for _, tc := range cr.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				Name:      tc.Function.Name,
				Arguments: map[string]any(tc.Function.Arguments),
			})
		}
		return nil
	}); err != nil {
		return Completion{}, &OracleError{Op: "ollama", Err: err}
	}

	out.Content = text.String()
	return out, nil
}

var _ Oracle = (*OllamaOracle)(nil)
