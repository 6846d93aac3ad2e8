// Package mapping resolves step input mappings against the run context.
package mapping

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"workflow-orchestrator/backend/internal/payload"
)

var (
	// ErrInvalidReference indicates a reference string that cannot be parsed.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrUnresolvableReference indicates a reference to a step that is not
	// strictly earlier than the referencing step, or does not exist.
	ErrUnresolvableReference = errors.New("unresolvable reference")
)

const (
	refPrefix   = "$."
	inputRoot   = "input"
	stepsRoot   = "steps."
	outputField = "output"
)

// Source identifies the payload a reference reads from.
type Source int

const (
	SourceInput Source = iota
	SourceStep
)

// Reference is a parsed "$.input..." or "$.steps.<id>.output..." expression.
type Reference struct {
	Raw    string
	Source Source
	StepID int
	Path   payload.Path
}

func (r Reference) String() string {
	return r.Raw
}

// IsReference reports whether v is a reference rather than a literal.
func IsReference(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, refPrefix)
}

// ParseReference parses a source reference.
func ParseReference(raw string) (Reference, error) {
	if !strings.HasPrefix(raw, refPrefix) {
		return Reference{}, fmt.Errorf("%w: %q does not start with %q", ErrInvalidReference, raw, refPrefix)
	}
	rest := raw[len(refPrefix):]
	ref := Reference{Raw: raw}

	switch {
	case hasRoot(rest, inputRoot):
		ref.Source = SourceInput
		rest = rest[len(inputRoot):]
	case strings.HasPrefix(rest, stepsRoot):
		rest = rest[len(stepsRoot):]
		end := strings.IndexByte(rest, '.')
		if end < 0 {
			return Reference{}, fmt.Errorf("%w: %q is missing .%s", ErrInvalidReference, raw, outputField)
		}
		digits := rest[:end]
		id, err := strconv.Atoi(digits)
		if err != nil || !allDigits(digits) {
			return Reference{}, fmt.Errorf("%w: %q has a bad step id %q", ErrInvalidReference, raw, digits)
		}
		rest = rest[end+1:]
		if !hasRoot(rest, outputField) {
			return Reference{}, fmt.Errorf("%w: %q is missing .%s", ErrInvalidReference, raw, outputField)
		}
		ref.Source = SourceStep
		ref.StepID = id
		rest = rest[len(outputField):]
	default:
		return Reference{}, fmt.Errorf("%w: %q must address $.input or $.steps.<id>.output", ErrInvalidReference, raw)
	}

	rest = strings.TrimPrefix(rest, ".")
	if rest == "" && strings.HasSuffix(raw, ".") {
		return Reference{}, fmt.Errorf("%w: trailing '.' in %q", ErrInvalidReference, raw)
	}
	p, err := payload.ParsePath(rest)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	ref.Path = p
	return ref, nil
}

// hasRoot reports whether s is root, or root followed by a path.
func hasRoot(s, root string) bool {
	if !strings.HasPrefix(s, root) {
		return false
	}
	if len(s) == len(root) {
		return true
	}
	next := s[len(root)]
	return next == '.' || next == '['
}

// ReferenceError describes a bad reference bound to a target field.
type ReferenceError struct {
	Field     string
	Reference string
	Err       error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
