package schema

import (
	"errors"
	"fmt"
)

// NodeError reports an invalid node configuration detected at construction.
type NodeError struct {
	Node    string
	Message string
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: invalid node: %s", e.Node, e.Message)
}

// ConversionError reports a value of the wrong primitive kind.
type ConversionError struct {
	Node  string
	Value any
	Err   error
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: value '%v' can't convert: %v", e.Node, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: value '%v' can't convert: %T", e.Node, e.Value, e.Value)
}

// Unwrap returns the underlying parse error, if any.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// CheckError reports a value of the right kind that violates a constraint.
type CheckError struct {
	Message string
}

// Error implements the error interface.
func (e *CheckError) Error() string {
	return e.Message
}

func nodeErrorf(node, format string, args ...any) *NodeError {
	return &NodeError{Node: node, Message: fmt.Sprintf(format, args...)}
}

func checkErrorf(format string, args ...any) *CheckError {
	return &CheckError{Message: fmt.Sprintf(format, args...)}
}

// IsNodeError reports whether err is or wraps a *NodeError.
func IsNodeError(err error) bool {
	var e *NodeError
	return errors.As(err, &e)
}

// IsConversionError reports whether err is or wraps a *ConversionError.
func IsConversionError(err error) bool {
	var e *ConversionError
	return errors.As(err, &e)
}

// IsCheckError reports whether err is or wraps a *CheckError.
func IsCheckError(err error) bool {
	var e *CheckError
	return errors.As(err, &e)
}
