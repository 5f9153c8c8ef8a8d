package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/agentforum/src/memory"
)

const decisionFormat = `Reply with JSON only:
{
  "status": "continue" or "completed",
  "reasoning": "your thinking",
  "action": {
    "type": "<tool name>" or "save_to_memory" or null,
    "arguments": {"<name>": "<value>"} (for a tool),
    "memory_key": "short_key" (for save_to_memory),
    "memory_value": "what to remember" (for save_to_memory),
    "importance": "high" or "normal" (for save_to_memory)
  },
  "final_answer": "the answer" (when completed)
}`

type promptFact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// buildPrompt renders the task, every fact (key and value only) and every step.
func buildPrompt(task, toolList string, snap memory.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("You are an agent working through a task step by step. You have a memory for saving important information.\n\n")
	sb.WriteString("Task: ")
	sb.WriteString(task)
	sb.WriteString("\n\nMemory:\n")
	if len(snap.Facts) == 0 {
		sb.WriteString("(empty)\n")
	} else {
		facts := make([]promptFact, 0, len(snap.Facts))
		for _, f := range snap.Facts {
			facts = append(facts, promptFact{Key: f.Key, Value: clip(f.Value, 100)})
		}
		b, _ := json.MarshalIndent(facts, "", "  ")
		sb.Write(b)
		sb.WriteByte('\n')
	}

	sb.WriteString("\nCompleted steps:\n")
	if len(snap.Steps) == 0 {
		sb.WriteString("(none yet)\n")
	}
	for _, s := range snap.Steps {
		fmt.Fprintf(&sb, "%d. %s\n", s.Index, s.Action)
		if s.Result != "" {
			fmt.Fprintf(&sb, "   result: %s\n", s.Result)
		}
	}

	sb.WriteString("\nAvailable tools:\n")
	if toolList == "" {
		sb.WriteString("(none)\n")
	} else {
		sb.WriteString(toolList)
		sb.WriteByte('\n')
	}

	sb.WriteString("\nDecide the next step. You may call one tool, save one piece of information to memory, or finish with the answer.\n")
	sb.WriteString("Save key names, numbers and conclusions to memory under short keys; mark the important ones \"high\".\n\n")
	sb.WriteString(decisionFormat)
	return sb.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
