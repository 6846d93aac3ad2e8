package models

// FieldType is the declared runtime type of a schema field
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeObject  FieldType = "object"
	FieldTypeArray   FieldType = "array"
)

// Schema declares the fields of a payload. A nil *Schema accepts anything.
type Schema struct {
	Fields map[string]*FieldSchema `json:"fields" yaml:"fields"`
	// Strict rejects fields that are not declared.
	Strict bool `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// FieldSchema declares one field. Fields applies to objects and Items to
// array elements.
type FieldSchema struct {
	Type        FieldType               `json:"type" yaml:"type"`
	Required    bool                    `json:"required,omitempty" yaml:"required,omitempty"`
	Description string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      map[string]*FieldSchema `json:"fields,omitempty" yaml:"fields,omitempty"`
	Items       *FieldSchema            `json:"items,omitempty" yaml:"items,omitempty"`
	Strict      bool                    `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// Violation is a field-level schema failure.
type Violation struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}
