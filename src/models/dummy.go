package models

import (
	"context"
	"fmt"
	"strings"
)

// DummyOracle is a lightweight oracle useful for local runs without API calls.
// It echoes the last non-empty line of the final user message.
type DummyOracle struct {
	Prefix string
}

func NewDummyOracle(prefix string) *DummyOracle {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyOracle{Prefix: prefix}
}

func (d *DummyOracle) Complete(_ context.Context, transcript []Message, _ Options) (Completion, error) {
	lines := strings.Split(lastUserContent(transcript), "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(lines[i])
		if candidate != "" {
			last = candidate
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return Completion{Content: fmt.Sprintf("%s %s", d.Prefix, last)}, nil
}

var _ Oracle = (*DummyOracle)(nil)
