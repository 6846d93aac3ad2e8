package mapping

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/pkg/models"
)

// Terminal is the step id used to resolve a workflow's output mapping:
// every step is earlier than it.
const Terminal = math.MaxInt

// Context is the read-only state a mapping is resolved against.
type Context struct {
	Input   models.Payload
	Outputs map[int]models.Payload
}

// Check validates every reference in mapping at definition time. earlier
// holds the ids of the steps that run before stepID. All problems are
// returned joined.
func Check(stepID int, mapping map[string]any, earlier map[int]bool) error {
	var errs []error
	for _, field := range sortedFields(mapping) {
		raw, ok := mapping[field].(string)
		if !ok || !IsReference(raw) {
			continue
		}
		ref, err := ParseReference(raw)
		if err != nil {
			errs = append(errs, &ReferenceError{Field: field, Reference: raw, Err: err})
			continue
		}
		if ref.Source != SourceStep {
			continue
		}
		switch {
		case ref.StepID == stepID:
			errs = append(errs, &ReferenceError{Field: field, Reference: raw,
				Err: fmt.Errorf("%w: %s references its own step", ErrUnresolvableReference, raw)})
		case ref.StepID > stepID:
			errs = append(errs, &ReferenceError{Field: field, Reference: raw,
				Err: fmt.Errorf("%w: %s references later step %d", ErrUnresolvableReference, raw, ref.StepID)})
		case !earlier[ref.StepID]:
			errs = append(errs, &ReferenceError{Field: field, Reference: raw,
				Err: fmt.Errorf("%w: %s references unknown step %d", ErrUnresolvableReference, raw, ref.StepID)})
		}
	}
	return errors.Join(errs...)
}

// Resolve builds the input payload for stepID. References whose path does
// not exist omit their target field. Literal values are copied as-is.
func Resolve(stepID int, mapping map[string]any, rc *Context) (models.Payload, error) {
	out := make(models.Payload, len(mapping))
	for _, field := range sortedFields(mapping) {
		v := mapping[field]
		if !IsReference(v) {
			out[field] = payload.Clone(v)
			continue
		}
		raw := v.(string)
		ref, err := ParseReference(raw)
		if err != nil {
			return nil, &ReferenceError{Field: field, Reference: raw, Err: err}
		}
		root, err := rc.source(stepID, ref)
		if err != nil {
			return nil, &ReferenceError{Field: field, Reference: raw, Err: err}
		}
		if val, found := payload.Lookup(root, ref.Path); found {
			out[field] = payload.Clone(val)
		}
	}
	return out, nil
}

func (rc *Context) source(stepID int, ref Reference) (any, error) {
	if ref.Source == SourceInput {
		if rc == nil {
			return models.Payload{}, nil
		}
		return rc.Input, nil
	}
	if ref.StepID >= stepID {
		return nil, fmt.Errorf("%w: step %d is not earlier than step %d", ErrUnresolvableReference, ref.StepID, stepID)
	}
	if rc == nil {
		return nil, fmt.Errorf("%w: no output for step %d", ErrUnresolvableReference, ref.StepID)
	}
	out, ok := rc.Outputs[ref.StepID]
	if !ok {
		return nil, fmt.Errorf("%w: no output for step %d", ErrUnresolvableReference, ref.StepID)
	}
	return out, nil
}

func sortedFields(m map[string]any) []string {
	fields := make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
