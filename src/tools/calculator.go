package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CalculatorTool evaluates basic arithmetic expressions in the form "a op b".
type CalculatorTool struct{}

func (c *CalculatorTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "calculator",
		Description: "Evaluates simple math expressions such as '2 + 2' or '5 * 3'.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Expression in the form '<number> <operator> <number>'.",
				},
			},
			"required": []any{"expression"},
		},
		Examples: []map[string]any{{"expression": "21 / 3"}},
	}
}

func (c *CalculatorTool) Invoke(_ context.Context, req ToolRequest) (ToolResponse, error) {
	expression, err := stringArg(req.Arguments, "expression")
	if err != nil {
		return ToolResponse{}, err
	}
	fields := strings.Fields(strings.TrimSpace(expression))
	if len(fields) != 3 {
		return ToolResponse{}, fmt.Errorf("expected format '<number> <op> <number>'")
	}

	left, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return ToolResponse{}, fmt.Errorf("invalid left operand: %w", err)
	}
	right, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return ToolResponse{}, fmt.Errorf("invalid right operand: %w", err)
	}

	var result float64
	switch fields[1] {
	case "+":
		result = left + right
	case "-":
		result = left - right
	case "*", "x", "X":
		result = left * right
	case "/":
		if math.Abs(right) < 1e-12 {
			return ToolResponse{}, fmt.Errorf("division by zero")
		}
		result = left / right
	case "^", "**":
		result = math.Pow(left, right)
	default:
		return ToolResponse{}, fmt.Errorf("unsupported operator %q", fields[1])
	}

	return ToolResponse{Content: strconv.FormatFloat(result, 'f', -1, 64)}, nil
}
