package api

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification of an engine error.
type ErrorKind string

const (
	// KindConfiguration covers unknown step types and malformed step
	// schemas. Fatal: the run aborts before it starts.
	KindConfiguration ErrorKind = "configuration"

	// KindValidation covers graph defects (cycles, dangling references)
	// and resolution invariant violations. Fatal: the run never starts, or
	// aborts immediately.
	KindValidation ErrorKind = "validation"

	// KindDataOperation covers malformed data-operation specs (an unknown
	// op name). Fails the step, never the process.
	KindDataOperation ErrorKind = "data_operation"

	// KindItem covers a single scatter-branch failure. Isolated from
	// sibling branches unless fail-fast is enabled.
	KindItem ErrorKind = "item"

	// KindRoutingConfig covers invalid router configuration (weights not
	// summing to 1.0). Recovered via the last-known-good configuration.
	KindRoutingConfig ErrorKind = "routing_config"
)

// Error is the engine's error type. Every fatal error names the offending
// step so user-visible output can point at it.
type Error struct {
	Kind   ErrorKind
	StepID string
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s: step %q: %s", e.Kind, e.StepID, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewConfigurationError reports an unknown step type or malformed schema.
func NewConfigurationError(stepID, format string, args ...any) error {
	return &Error{Kind: KindConfiguration, StepID: stepID, Msg: fmt.Sprintf(format, args...)}
}

// NewValidationError reports a graph or resolution defect.
func NewValidationError(stepID, format string, args ...any) error {
	return &Error{Kind: KindValidation, StepID: stepID, Msg: fmt.Sprintf(format, args...)}
}

// NewDataOperationError reports a malformed data-operation spec.
func NewDataOperationError(stepID, format string, args ...any) error {
	return &Error{Kind: KindDataOperation, StepID: stepID, Msg: fmt.Sprintf(format, args...)}
}

// NewRoutingConfigError reports an invalid routing configuration.
func NewRoutingConfigError(format string, args ...any) error {
	return &Error{Kind: KindRoutingConfig, Msg: fmt.Sprintf(format, args...)}
}

// ItemError wraps the failure of one scattered item. Index refers to the
// item's position in the original input order.
type ItemError struct {
	Index int
	Item  any
	Cause error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Cause)
}

func (e *ItemError) Unwrap() error { return e.Cause }

// KindOf returns the kind of err, or "" if err is not an engine Error.
// ItemErrors report KindItem.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var ie *ItemError
	if errors.As(err, &ie) {
		return KindItem
	}
	return ""
}

// IsFatal reports whether err aborts a whole run rather than a single step.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindValidation:
		return true
	default:
		return false
	}
}
