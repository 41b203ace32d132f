package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a session failure.
type ErrorKind string

const (
	// ErrorKindAbsolutePath is returned for references carrying a root or drive component.
	ErrorKindAbsolutePath ErrorKind = "absolute_path"

	// ErrorKindOutsideRoot is returned for relative references that climb above the root directory.
	ErrorKindOutsideRoot ErrorKind = "outside_root"

	// ErrorKindNotFound is returned when a reference with an explicit extension does not exist.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindNotFoundWithExtensions is returned when no declared extension matches an existing unit.
	ErrorKindNotFoundWithExtensions ErrorKind = "not_found_with_extensions"

	// ErrorKindUndeclaredExtension is returned for references whose extension is not in the allow-list.
	ErrorKindUndeclaredExtension ErrorKind = "undeclared_extension"

	// ErrorKindCircularInclude is returned when a unit is included while it is still being resolved.
	ErrorKindCircularInclude ErrorKind = "circular_include"

	// ErrorKindTypeMismatch is returned for unsupported defaults, builder or validator input shapes.
	ErrorKindTypeMismatch ErrorKind = "type_mismatch"

	// ErrorKindEvaluation wraps failures raised while evaluating a unit body.
	ErrorKindEvaluation ErrorKind = "evaluation"
)

// Error is the error type returned by every engine operation.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind

	// Message is the human-readable error message.
	Message string

	// Path is the unit reference or resolved unit path involved, if any.
	Path string

	// Chain is the ordered list of unit identities forming an inclusion cycle.
	Chain []string

	// Err is the underlying error that caused this error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Kind, e.Message)
	if e.Path != "" {
		fmt.Fprintf(&sb, " (path=%s)", e.Path)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// FormatChain renders the cycle chain as "a->b->a".
func (e *Error) FormatChain() string {
	return formatChain(e.Chain)
}

// WithPath adds unit path context to an error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// NewCircularIncludeError creates a cycle error for the given chain.
// The last element of chain is the unit whose inclusion closed the cycle.
// The chain lists identities, not edges: a cycle of N edges has N+1
// entries, so a unit including itself yields [a.py a.py], one edge.
func NewCircularIncludeError(chain []string) *Error {
	c := make([]string, len(chain))
	copy(c, chain)
	e := newError(ErrorKindCircularInclude, nil, "circular include detected: %s", formatChain(c))
	e.Chain = c
	if len(c) > 0 {
		e.Path = c[len(c)-1]
	}
	return e
}

// NewTypeMismatchError creates an error naming the unsupported kind received.
func NewTypeMismatchError(what string, got any) *Error {
	return newError(ErrorKindTypeMismatch, nil, "unsupported %s type %T", what, got)
}

// NewEvaluationError wraps a failure raised while evaluating the unit at path.
func NewEvaluationError(path string, err error) *Error {
	return newError(ErrorKindEvaluation, err, "failed to evaluate unit").WithPath(path)
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsPathError reports whether err is one of the path resolution failures.
func IsPathError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case ErrorKindAbsolutePath, ErrorKindOutsideRoot, ErrorKindNotFound,
		ErrorKindNotFoundWithExtensions, ErrorKindUndeclaredExtension:
		return true
	}
	return false
}

// IsCircularInclude reports whether err is an inclusion cycle and returns its chain.
func IsCircularInclude(err error) ([]string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrorKindCircularInclude {
		return e.Chain, true
	}
	return nil, false
}

func formatChain(chain []string) string {
	return strings.Join(chain, "->")
}
