// Package models defines the domain models for the workflow orchestrator
package models

import (
	"time"
)

// Payload is a JSON-compatible mapping exchanged between the run input,
// step adapters and the run output. Values are canonical JSON values:
// nil, bool, float64, string, []any and map[string]any.
type Payload = map[string]any

// EndpointType selects the adapter used to execute a component
type EndpointType string

const (
	EndpointTypeAPI      EndpointType = "api"
	EndpointTypeFunction EndpointType = "function"
	EndpointTypeModel    EndpointType = "model"
)

// Valid reports whether t is one of the known endpoint types.
func (t EndpointType) Valid() bool {
	switch t {
	case EndpointTypeAPI, EndpointTypeFunction, EndpointTypeModel:
		return true
	}
	return false
}

// Component represents a reusable unit of work
type Component struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description" yaml:"description"`
	InputSchema  *Schema      `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema *Schema      `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Tags         []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	EndpointType EndpointType `json:"endpoint_type" yaml:"endpoint_type"`
	Active       bool         `json:"active" yaml:"active"`
	CreatedAt    time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time    `json:"updated_at" yaml:"-"`
}

// Workflow represents a named, ordered pipeline of steps.
type Workflow struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// InputSchema is the optional contract for a run's input payload.
	InputSchema *Schema `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`

	// OutputMapping, when set, builds the run output from the final
	// context instead of returning the last step's output.
	OutputMapping map[string]any `json:"output_mapping,omitempty" yaml:"output_mapping,omitempty"`

	Steps     []StepConfig `json:"steps" yaml:"steps"`
	CreatedAt time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt time.Time    `json:"updated_at" yaml:"-"`
}

// StepConfig represents a single stage of a workflow
type StepConfig struct {
	StepID      int     `json:"step_id" yaml:"step_id"`
	ComponentID string  `json:"component_id" yaml:"component_id"`
	Config      Payload `json:"config,omitempty" yaml:"config,omitempty"`

	// InputMapping binds component input fields to "$.input..." or
	// "$.steps.<id>.output..." references. Non-reference values are literals.
	InputMapping map[string]any `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`

	// Timeout overrides the executor's per-step timeout (Go duration syntax).
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}
