package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/agentforum/src/memory"
	"github.com/Protocol-Lattice/agentforum/src/models"
)

// Status is the oracle's verdict on the task.
type Status string

const (
	StatusContinue  Status = "continue"
	StatusCompleted Status = "completed"
)

// ActionType distinguishes observing (tool call) from remembering (fact write).
type ActionType string

const (
	ActionTool     ActionType = "tool"
	ActionRemember ActionType = "remember"
)

// Memory-agent style action types.
const (
	typeWebSearch    = "web_search"
	typeSaveToMemory = "save_to_memory"
)

// Action is the single thing a planner iteration may do.
type Action struct {
	Type        ActionType
	Tool        string
	Arguments   map[string]any
	MemoryKey   string
	MemoryValue string
	Importance  memory.Importance
}

// Describe renders the action the way it is recorded as a step.
func (a Action) Describe() string {
	if a.Type == ActionRemember {
		return "remember: " + a.MemoryKey
	}
	if q, ok := a.Arguments["query"].(string); ok && len(a.Arguments) == 1 {
		if a.Tool == typeWebSearch {
			return "search: " + q
		}
		return a.Tool + ": " + q
	}
	if len(a.Arguments) == 0 {
		return a.Tool
	}
	b, err := json.Marshal(a.Arguments)
	if err != nil {
		return a.Tool
	}
	return a.Tool + ": " + string(b)
}

// Decision is one parsed oracle reply.
type Decision struct {
	Status      Status
	Reasoning   string
	Action      *Action
	FinalAnswer string
}

type rawAction struct {
	Type        string         `json:"type"`
	Tool        string         `json:"tool"`
	Query       any            `json:"query"`
	Arguments   map[string]any `json:"arguments"`
	MemoryKey   string         `json:"memory_key"`
	MemoryValue any            `json:"memory_value"`
	Importance  string         `json:"importance"`
}

type rawDecision struct {
	Status      string     `json:"status"`
	Reasoning   any        `json:"reasoning"`
	NextAction  *rawAction `json:"next_action"`
	Action      *rawAction `json:"action"`
	FinalAnswer any        `json:"final_answer"`
}

// ParseDecision extracts and validates a Decision from oracle text. Markdown
// fences and prose around the JSON object are tolerated. Both the
// {"next_action": {"tool", "query"|"arguments"}} and the
// {"action": {"type", ...}} layouts are accepted. Failures are returned as
// *models.OracleError carrying raw.
func ParseDecision(raw string) (Decision, error) {
	fail := func(err error) (Decision, error) {
		return Decision{}, &models.OracleError{Op: "decision", Raw: raw, Err: err}
	}

	var rd rawDecision
	if err := unmarshalLoose(raw, &rd); err != nil {
		return fail(err)
	}

	d := Decision{
		Status:      Status(strings.ToLower(strings.TrimSpace(rd.Status))),
		Reasoning:   anyToString(rd.Reasoning),
		FinalAnswer: anyToString(rd.FinalAnswer),
	}
	switch d.Status {
	case StatusCompleted:
		if d.FinalAnswer == "" {
			return fail(errors.New("completed decision has no final_answer"))
		}
		return d, nil
	case StatusContinue:
	case "":
		return fail(errors.New("decision has no status"))
	default:
		return fail(fmt.Errorf("unknown status %q", rd.Status))
	}

	next, err := convertAction(rd.NextAction)
	if err != nil {
		return fail(err)
	}
	act, err := convertAction(rd.Action)
	if err != nil {
		return fail(err)
	}
	if next != nil && act != nil {
		return fail(errors.New("decision names more than one action"))
	}
	if next != nil {
		d.Action = next
	} else {
		d.Action = act
	}
	return d, nil
}

func convertAction(ra *rawAction) (*Action, error) {
	if ra == nil {
		return nil, nil
	}
	kind := strings.TrimSpace(ra.Type)
	tool := strings.TrimSpace(ra.Tool)
	remember := kind == typeSaveToMemory || (kind == "" && tool == "" && ra.MemoryKey != "")

	if remember {
		if tool != "" {
			return nil, fmt.Errorf("action is both a tool call (%s) and a memory write", tool)
		}
		key := strings.TrimSpace(ra.MemoryKey)
		if key == "" {
			return nil, errors.New("memory write has no memory_key")
		}
		return &Action{
			Type:        ActionRemember,
			MemoryKey:   key,
			MemoryValue: anyToString(ra.MemoryValue),
			Importance:  memory.ParseImportance(ra.Importance),
		}, nil
	}

	if tool == "" {
		tool = kind
	} else if kind != "" && kind != tool {
		return nil, fmt.Errorf("action names tool %q and type %q", tool, kind)
	}
	if tool == "" {
		return nil, nil
	}
	if ra.MemoryKey != "" {
		return nil, fmt.Errorf("action is both a tool call (%s) and a memory write", tool)
	}

	args := make(map[string]any, len(ra.Arguments)+1)
	for k, v := range ra.Arguments {
		args[k] = v
	}
	if q := anyToString(ra.Query); q != "" {
		if _, ok := args["query"]; !ok {
			args["query"] = q
		}
	}
	return &Action{Type: ActionTool, Tool: tool, Arguments: args}, nil
}

// decisionFromCompletion prefers the JSON decision in the text. A reply that
// carries no parseable decision but does carry a native tool call is read as
// "continue with that tool"; only the first call is honoured.
func decisionFromCompletion(c models.Completion) (Decision, error) {
	d, err := ParseDecision(c.Content)
	if err == nil || len(c.ToolCalls) == 0 {
		return d, err
	}
	call := c.ToolCalls[0]
	args := make(map[string]any, len(call.Arguments))
	for k, v := range call.Arguments {
		args[k] = v
	}
	return Decision{
		Status:    StatusContinue,
		Reasoning: strings.TrimSpace(c.Content),
		Action:    &Action{Type: ActionTool, Tool: call.Name, Arguments: args},
	}, nil
}

// stripFences removes a Markdown fence wrapping the whole reply. Fences inside
// the JSON values are left alone.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func unmarshalLoose(raw string, v any) error {
	trim := stripFences(raw)
	if trim == "" {
		return models.ErrEmptyCompletion
	}
	err := json.Unmarshal([]byte(trim), v)
	if err == nil {
		return nil
	}
	first := strings.Index(trim, "{")
	last := strings.LastIndex(trim, "}")
	if first >= 0 && last > first {
		if err2 := json.Unmarshal([]byte(trim[first:last+1]), v); err2 == nil {
			return nil
		}
	}
	return fmt.Errorf("decision is not valid JSON: %w", err)
}

func anyToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		b, _ := json.Marshal(t)
		return strings.TrimSpace(string(b))
	}
}
