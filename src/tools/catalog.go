package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Protocol-Lattice/agentforum/src/models"
)

// Catalog is an in-memory, case-insensitive tool table.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
	specs map[string]ToolSpec
	order []string
}

// NewCatalog constructs a catalog seeded with the provided tools. Invalid or
// duplicate entries are skipped; use Register to see the error.
func NewCatalog(tools ...Tool) *Catalog {
	catalog := &Catalog{
		tools: make(map[string]Tool),
		specs: make(map[string]ToolSpec),
	}
	for _, tool := range tools {
		_ = catalog.Register(tool)
	}
	return catalog
}

// Register adds a tool using a lower-cased key. Duplicate names return an error.
func (c *Catalog) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	spec := tool.Spec()
	key := normalize(spec.Name)
	if key == "" {
		return fmt.Errorf("tool name is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tools[key]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	c.tools[key] = tool
	c.specs[key] = spec
	c.order = append(c.order, key)
	return nil
}

// Lookup returns the tool and its specification if present.
func (c *Catalog) Lookup(name string) (Tool, ToolSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := normalize(name)
	tool, ok := c.tools[key]
	if !ok {
		return nil, ToolSpec{}, false
	}
	return tool, c.specs[key], true
}

// Specs returns the tool specifications in registration order.
func (c *Catalog) Specs() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(c.order))
	for _, key := range c.order {
		specs = append(specs, c.specs[key])
	}
	return specs
}

// Tools returns the registered tools in order.
func (c *Catalog) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools := make([]Tool, 0, len(c.order))
	for _, key := range c.order {
		tools = append(tools, c.tools[key])
	}
	return tools
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Schemas converts the specs into oracle tool schemas.
func (c *Catalog) Schemas() []models.ToolSchema {
	specs := c.Specs()
	out := make([]models.ToolSchema, 0, len(specs))
	for _, s := range specs {
		out = append(out, models.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.InputSchema})
	}
	return out
}

// Describe renders the catalog as a bullet list for prompts.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for _, s := range c.Specs() {
		fmt.Fprintf(&b, "- %s: %s", s.Name, s.Description)
		if props, ok := s.InputSchema["properties"].(map[string]any); ok && len(props) > 0 {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintf(&b, " (arguments: %s)", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Invoke resolves name and runs the tool. An unregistered name yields
// *UnknownToolError; a failing tool yields *ToolExecutionError.
func (c *Catalog) Invoke(ctx context.Context, name string, req ToolRequest) (ToolResponse, error) {
	tool, spec, ok := c.Lookup(name)
	if !ok {
		return ToolResponse{}, &UnknownToolError{Name: name}
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}
	resp, err := tool.Invoke(ctx, req)
	if err != nil {
		return ToolResponse{}, &ToolExecutionError{Name: spec.Name, Err: err}
	}
	return resp, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

