// Package schema validates payloads against component and workflow schema
// declarations.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"workflow-orchestrator/backend/pkg/models"
)

// Result holds the violations found by Validate. An empty result is valid.
type Result struct {
	Violations []models.Violation
}

// Valid reports whether no violations were found.
func (r Result) Valid() bool {
	return len(r.Violations) == 0
}

// Summary renders the violations as a single line.
func (r Result) Summary() string {
	parts := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		parts = append(parts, v.Path+": "+v.Reason)
	}
	return strings.Join(parts, "; ")
}

// Validate checks payload against s. Malformed payloads are reported as
// violations, never as errors. A nil schema accepts any payload.
func Validate(payload map[string]any, s *models.Schema) Result {
	if s == nil {
		return Result{}
	}
	v := &validator{}
	v.object("", payload, s.Fields, s.Strict)
	sort.SliceStable(v.violations, func(i, j int) bool {
		return v.violations[i].Path < v.violations[j].Path
	})
	return Result{Violations: v.violations}
}

type validator struct {
	violations []models.Violation
}

func (v *validator) add(path, format string, args ...any) {
	v.violations = append(v.violations, models.Violation{
		Path:   path,
		Reason: fmt.Sprintf(format, args...),
	})
}

func (v *validator) object(path string, obj map[string]any, fields map[string]*models.FieldSchema, strict bool) {
	for _, name := range sortedNames(fields) {
		decl := fields[name]
		p := join(path, name)
		val, present := obj[name]
		// null counts as absent
		if !present || val == nil {
			if decl != nil && decl.Required {
				v.add(p, "required field is missing")
			}
			continue
		}
		v.value(p, val, decl)
	}

	if !strict {
		return
	}
	for name := range obj {
		if _, declared := fields[name]; !declared {
			v.add(join(path, name), "field is not declared")
		}
	}
}

func (v *validator) value(path string, val any, decl *models.FieldSchema) {
	if decl == nil {
		return
	}
	actual := typeName(val)
	if !matches(decl.Type, actual) {
		v.add(path, "expected %s, got %s", decl.Type, actual)
		return
	}

	switch decl.Type {
	case models.FieldTypeObject:
		v.object(path, val.(map[string]any), decl.Fields, decl.Strict)
	case models.FieldTypeArray:
		if decl.Items == nil {
			return
		}
		for i, el := range val.([]any) {
			v.value(fmt.Sprintf("%s[%d]", path, i), el, decl.Items)
		}
	}
}

func matches(declared models.FieldType, actual string) bool {
	return string(declared) == actual
}

// typeName maps a runtime value onto the schema type vocabulary.
func typeName(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case string:
		return string(models.FieldTypeString)
	case bool:
		return string(models.FieldTypeBoolean)
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return string(models.FieldTypeNumber)
	case map[string]any:
		return string(models.FieldTypeObject)
	case []any:
		return string(models.FieldTypeArray)
	default:
		return fmt.Sprintf("unsupported type %T", val)
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func sortedNames(fields map[string]*models.FieldSchema) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
