package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/agentforum/src/memory"
	"github.com/Protocol-Lattice/agentforum/src/models"
)

func TestParseDecisionNextActionShape(t *testing.T) {
	d, err := ParseDecision("```json\n" + `{"status":"continue","reasoning":"need data","next_action":{"tool":"web_search","query":"nobel physics 2024"},"final_answer":null}` + "\n```")
	require.NoError(t, err)

	assert.Equal(t, StatusContinue, d.Status)
	assert.Equal(t, "need data", d.Reasoning)
	require.NotNil(t, d.Action)
	assert.Equal(t, ActionTool, d.Action.Type)
	assert.Equal(t, "web_search", d.Action.Tool)
	assert.Equal(t, map[string]any{"query": "nobel physics 2024"}, d.Action.Arguments)
	assert.Equal(t, "search: nobel physics 2024", d.Action.Describe())
}

func TestParseDecisionMemoryShape(t *testing.T) {
	d, err := ParseDecision(`{"status":"continue","reasoning":"keep it","action":{"type":"save_to_memory","memory_key":"winners","memory_value":"Hopfield, Hinton","importance":"high"}}`)
	require.NoError(t, err)

	require.NotNil(t, d.Action)
	assert.Equal(t, ActionRemember, d.Action.Type)
	assert.Equal(t, "winners", d.Action.MemoryKey)
	assert.Equal(t, "Hopfield, Hinton", d.Action.MemoryValue)
	assert.Equal(t, memory.ImportanceHigh, d.Action.Importance)
}

func TestParseDecisionMemoryShapeToolType(t *testing.T) {
	d, err := ParseDecision(`{"status":"continue","action":{"type":"calculator","arguments":{"expression":"2+2"}}}`)
	require.NoError(t, err)
	require.NotNil(t, d.Action)
	assert.Equal(t, "calculator", d.Action.Tool)
	assert.Equal(t, "2+2", d.Action.Arguments["expression"])
}

func TestParseDecisionNullActionType(t *testing.T) {
	d, err := ParseDecision(`{"status":"continue","reasoning":"hmm","action":{"type":null}}`)
	require.NoError(t, err)
	assert.Nil(t, d.Action)
}

func TestParseDecisionCompleted(t *testing.T) {
	d, err := ParseDecision(`Here you go: {"status":"completed","final_answer":"42"} hope it helps`)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, d.Status)
	assert.Equal(t, "42", d.FinalAnswer)
}

func TestParseDecisionKeepsFencesInValues(t *testing.T) {
	answer := "Run:\n```sh\ngo test\n```"
	body := `{"status":"completed","reasoning":"use ` + "```" + `go test` + "```" + `","final_answer":"Run:\n` + "```" + `sh\ngo test\n` + "```" + `"}`

	for name, raw := range map[string]string{
		"fenced":       "```json\n" + body + "\n```",
		"bare fence":   "```\n" + body + "\n```",
		"prose around": "Decision:\n```json\n" + body + "\n```\nDone.",
		"unfenced":     body,
	} {
		t.Run(name, func(t *testing.T) {
			d, err := ParseDecision(raw)
			require.NoError(t, err)
			assert.Equal(t, answer, d.FinalAnswer)
			assert.Equal(t, "use ```go test```", d.Reasoning)
		})
	}
}

func TestParseDecisionRejects(t *testing.T) {
	cases := map[string]string{
		"not json":           "I think we should search",
		"empty":              "   ",
		"missing status":     `{"reasoning":"x"}`,
		"unknown status":     `{"status":"paused"}`,
		"completed no answer": `{"status":"completed","final_answer":""}`,
		"two actions":        `{"status":"continue","next_action":{"tool":"echo"},"action":{"type":"web_search","query":"q"}}`,
		"tool and memory":    `{"status":"continue","next_action":{"tool":"echo","memory_key":"k"}}`,
		"memory without key": `{"status":"continue","action":{"type":"save_to_memory","memory_value":"v"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDecision(raw)
			var oe *models.OracleError
			require.True(t, errors.As(err, &oe), "expected OracleError, got %v", err)
			assert.Equal(t, raw, oe.Raw)
		})
	}
}

func TestDecisionFromNativeToolCall(t *testing.T) {
	d, err := decisionFromCompletion(models.Completion{
		ToolCalls: []models.ToolCall{
			{Name: "echo", Arguments: map[string]any{"text": "hi"}},
			{Name: "time"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusContinue, d.Status)
	require.NotNil(t, d.Action)
	assert.Equal(t, "echo", d.Action.Tool)
	assert.Equal(t, "hi", d.Action.Arguments["text"])
}

func TestDescribeMultipleArguments(t *testing.T) {
	a := Action{Type: ActionTool, Tool: "lookup", Arguments: map[string]any{"b": 2.0, "a": "x"}}
	assert.Equal(t, `lookup: {"a":"x","b":2}`, a.Describe())
	assert.Equal(t, "remember: k", Action{Type: ActionRemember, MemoryKey: "k"}.Describe())
}
