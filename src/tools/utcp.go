package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	utcp "github.com/universal-tool-calling-protocol/go-utcp"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"
)

// UTCPCaller is the part of a UTCP client needed to run a tool.
type UTCPCaller interface {
	CallTool(ctx context.Context, toolName string, args map[string]any) (any, error)
}

// UTCPSearcher is the part of a UTCP client needed to discover tools.
type UTCPSearcher interface {
	SearchTools(query string, limit int) ([]utcptools.Tool, error)
}

// UTCPClient can both discover and call UTCP tools.
type UTCPClient interface {
	UTCPCaller
	UTCPSearcher
}

// UTCPToolLimit caps how many tools are taken from one providers file.
const UTCPToolLimit = 100

// NewUTCPClient builds a UTCP client. A non-empty providersFile is read and
// every provider in it registered; a missing or malformed file is an error.
func NewUTCPClient(ctx context.Context, providersFile string) (utcp.UtcpClientInterface, error) {
	cfg := utcp.NewClientConfig()
	cfg.ProvidersFilePath = providersFile
	client, err := utcp.NewUTCPClient(ctx, cfg, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("utcp client: %w", err)
	}
	return client, nil
}

// RegisterUTCPTools adds every tool client knows about to catalog and returns
// the registered names.
func RegisterUTCPTools(catalog *Catalog, client UTCPClient) ([]string, error) {
	found, err := DiscoverUTCPTools(client, client, "", UTCPToolLimit)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(found))
	for _, t := range found {
		if err := catalog.Register(t); err != nil {
			return names, fmt.Errorf("utcp: %w", err)
		}
		names = append(names, t.Spec().Name)
	}
	return names, nil
}

// UTCPTool forwards invocations to a tool served over UTCP.
type UTCPTool struct {
	name        string
	description string
	schema      map[string]any
	client      UTCPCaller
}

// NewUTCPTool exposes the remote tool name through client.
func NewUTCPTool(name, description string, schema map[string]any, client UTCPCaller) *UTCPTool {
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &UTCPTool{name: name, description: description, schema: schema, client: client}
}

func (t *UTCPTool) Spec() ToolSpec {
	return ToolSpec{Name: t.name, Description: t.description, InputSchema: t.schema}
}

func (t *UTCPTool) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	if t.client == nil {
		return ToolResponse{}, fmt.Errorf("utcp client is nil")
	}
	out, err := t.client.CallTool(ctx, t.name, req.Arguments)
	if err != nil {
		return ToolResponse{}, err
	}
	return ToolResponse{
		Content:  renderResult(out),
		Metadata: map[string]string{"transport": "utcp"},
	}, nil
}

// DiscoverUTCPTools searches the UTCP repository and wraps every match as a Tool
// that calls back through caller.
func DiscoverUTCPTools(searcher UTCPSearcher, caller UTCPCaller, query string, limit int) ([]Tool, error) {
	found, err := searcher.SearchTools(query, limit)
	if err != nil {
		return nil, fmt.Errorf("utcp search: %w", err)
	}
	out := make([]Tool, 0, len(found))
	for _, ft := range found {
		if strings.TrimSpace(ft.Name) == "" {
			continue
		}
		schema := map[string]any{"type": "object", "properties": ft.Inputs.Properties}
		if ft.Inputs.Properties == nil {
			schema["properties"] = map[string]any{}
		}
		if len(ft.Inputs.Required) > 0 {
			required := make([]any, 0, len(ft.Inputs.Required))
			for _, r := range ft.Inputs.Required {
				required = append(required, r)
			}
			schema["required"] = required
		}
		out = append(out, NewUTCPTool(ft.Name, ft.Description, schema, caller))
	}
	return out, nil
}

func renderResult(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case []byte:
		return string(r)
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprint(r)
		}
		return string(b)
	}
}
