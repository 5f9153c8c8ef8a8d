package swarm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/agentforum/src/tools"
)

// workerTool lets a planner delegate a task to a worker.
type workerTool struct {
	worker *Worker
}

// AsTool adapts the worker to the tools.Tool interface. The tool name is the
// lower-cased worker id.
func (w *Worker) AsTool() tools.Tool {
	return &workerTool{worker: w}
}

func (t *workerTool) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        strings.ToLower(t.worker.ID),
		Description: fmt.Sprintf("Delegate a task to %s (%s).", t.worker.ID, t.worker.Role),
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{
					"type":        "string",
					"description": "The task for the worker.",
				},
				"context": map[string]any{
					"type":        "string",
					"description": "Optional supporting information.",
				},
			},
			"required": []string{"task"},
		},
	}
}

func (t *workerTool) Invoke(ctx context.Context, req tools.ToolRequest) (tools.ToolResponse, error) {
	task, ok := req.Arguments["task"].(string)
	if !ok || strings.TrimSpace(task) == "" {
		// planners often send the text as "query"
		task, ok = req.Arguments["query"].(string)
	}
	if !ok || strings.TrimSpace(task) == "" {
		return tools.ToolResponse{}, fmt.Errorf("missing or invalid 'task' argument")
	}
	extra, _ := req.Arguments["context"].(string)

	out, err := t.worker.Process(ctx, task, extra)
	if err != nil {
		return tools.ToolResponse{}, err
	}
	return tools.ToolResponse{Content: out, Metadata: map[string]string{"worker": t.worker.ID}}, nil
}
