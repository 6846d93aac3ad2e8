package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"workflow-orchestrator/backend/pkg/models"
)

// ErrInvalidSchema indicates a malformed schema declaration.
var ErrInvalidSchema = errors.New("invalid schema")

// Check verifies that s is well formed: every declared type is known and
// nested declarations only appear where the type allows them.
func Check(s *models.Schema) error {
	if s == nil {
		return nil
	}
	var problems []string
	checkFields("", s.Fields, &problems)
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSchema, strings.Join(problems, "; "))
	}
	return nil
}

func checkFields(path string, fields map[string]*models.FieldSchema, problems *[]string) {
	for _, name := range sortedNames(fields) {
		if name == "" {
			*problems = append(*problems, fmt.Sprintf("%s: empty field name", displayPath(path)))
			continue
		}
		checkField(join(path, name), fields[name], problems)
	}
}

func checkField(path string, decl *models.FieldSchema, problems *[]string) {
	if decl == nil {
		*problems = append(*problems, path+": empty declaration")
		return
	}
	switch decl.Type {
	case models.FieldTypeString, models.FieldTypeNumber, models.FieldTypeBoolean:
		if len(decl.Fields) > 0 {
			*problems = append(*problems, path+": fields are only allowed on objects")
		}
		if decl.Items != nil {
			*problems = append(*problems, path+": items are only allowed on arrays")
		}
	case models.FieldTypeObject:
		if decl.Items != nil {
			*problems = append(*problems, path+": items are only allowed on arrays")
		}
		checkFields(path, decl.Fields, problems)
	case models.FieldTypeArray:
		if len(decl.Fields) > 0 {
			*problems = append(*problems, path+": fields are only allowed on objects")
		}
		if decl.Items != nil {
			checkField(path+"[]", decl.Items, problems)
		}
	case "":
		*problems = append(*problems, path+": missing type")
	default:
		*problems = append(*problems, fmt.Sprintf("%s: unknown type %q", path, decl.Type))
	}
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

// ToJSONSchema publishes a declaration as a standard JSON Schema object.
func ToJSONSchema(s *models.Schema) *jsonschema.Schema {
	out := &jsonschema.Schema{Type: "object"}
	if s == nil {
		return out
	}
	fillObject(out, s.Fields, s.Strict)
	return out
}

func fillObject(out *jsonschema.Schema, fields map[string]*models.FieldSchema, strict bool) {
	out.Properties = jsonschema.NewProperties()
	for _, name := range sortedNames(fields) {
		decl := fields[name]
		out.Properties.Set(name, fieldJSONSchema(decl))
		if decl != nil && decl.Required {
			out.Required = append(out.Required, name)
		}
	}
	if strict {
		out.AdditionalProperties = jsonschema.FalseSchema
	}
}

func fieldJSONSchema(decl *models.FieldSchema) *jsonschema.Schema {
	if decl == nil {
		return &jsonschema.Schema{}
	}
	out := &jsonschema.Schema{
		Type:        string(decl.Type),
		Description: decl.Description,
	}
	switch decl.Type {
	case models.FieldTypeObject:
		fillObject(out, decl.Fields, decl.Strict)
	case models.FieldTypeArray:
		if decl.Items != nil {
			out.Items = fieldJSONSchema(decl.Items)
		}
	}
	return out
}
