package tools

import (
	"context"
	"time"
)

// TimeTool reports the current UTC time in RFC3339 format.
type TimeTool struct {
	Now func() time.Time
}

func (t *TimeTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "time",
		Description: "Returns the current UTC time.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *TimeTool) Invoke(_ context.Context, _ ToolRequest) (ToolResponse, error) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return ToolResponse{Content: now().UTC().Format(time.RFC3339)}, nil
}
