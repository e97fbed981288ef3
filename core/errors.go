package core

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid configuration: a malformed or missing
	// radiation pattern, or medium parameters out of range. It is fatal at
	// startup and never returned from per-transmission paths.
	ErrConfiguration = errors.New("configuration error")
	ErrUnknownRadio  = errors.New("unknown radio")
)

// PatternError reports a malformed radiation-pattern line or, with Line
// zero, a table that leaves a bearing bucket uncovered.
type PatternError struct {
	Line int
	Text string
	Err  error
}

func (e *PatternError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("radiation pattern line %d (%q): %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("radiation pattern: %v", e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Is lets callers match any PatternError against ErrConfiguration.
func (e *PatternError) Is(target error) bool { return target == ErrConfiguration }
