package models

import (
	"errors"
	"fmt"
)

// ErrEmptyCompletion is returned when a provider answers with no text and no tool calls.
var ErrEmptyCompletion = errors.New("empty completion")

// OracleError reports a failed oracle call or a reply that could not be parsed into
// the structure the caller asked for. Raw holds the model text, when there was any.
type OracleError struct {
	Op  string
	Raw string
	Err error
}

func (e *OracleError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("oracle: %v", e.Err)
	}
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// AsOracleError wraps err as an OracleError unless it already is one.
func AsOracleError(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OracleError
	if errors.As(err, &oe) {
		return err
	}
	return &OracleError{Op: op, Err: err}
}
