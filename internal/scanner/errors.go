package scanner

import (
	"errors"
	"fmt"

	"github.com/nmorgan8/scanforge/internal/database/models"
)

// Sentinel causes an adapter failure can be classified by.
var (
	// ErrToolUnavailable: the external binary is missing or exited abnormally.
	ErrToolUnavailable = errors.New("scanner tool unavailable")
	// ErrUnparsable: the tool ran but its output could not be parsed.
	ErrUnparsable = errors.New("scanner output unparsable")
)

// AdapterError wraps a failure of one (adapter, target) task. It fails that
// task only; sibling tasks are unaffected.
type AdapterError struct {
	Scanner models.ScannerType
	Target  string
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s on %s: %v", e.Scanner, e.Target, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// StructuringError is a failure of the external text-to-JSON collaborator.
// The adapter's raw output is still persisted; no findings are emitted.
type StructuringError struct {
	Err error
}

func (e *StructuringError) Error() string {
	return fmt.Sprintf("structuring failed: %v", e.Err)
}

func (e *StructuringError) Unwrap() error {
	return e.Err
}
