// Package catalog loads component and workflow definitions from YAML or
// JSON files.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/internal/repository"
	"workflow-orchestrator/backend/internal/schema"
	"workflow-orchestrator/backend/pkg/models"
)

// ErrInvalidDocument is returned for documents that cannot be loaded.
var ErrInvalidDocument = errors.New("invalid catalog document")

// Document is the on-disk catalog format.
type Document struct {
	Components []*models.Component `json:"components" yaml:"components"`
	Workflows  []*models.Workflow  `json:"workflows" yaml:"workflows"`
}

// LoadFiles reads and merges the given catalog files in order. Later
// definitions with the same id replace earlier ones.
func LoadFiles(paths ...string) (*Document, error) {
	doc := &Document{}
	for _, path := range paths {
		d, err := Load(path)
		if err != nil {
			return nil, err
		}
		doc.merge(d)
	}
	return doc, nil
}

// Load reads one catalog file. Files ending in .json are decoded as JSON,
// everything else as YAML.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	doc, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a catalog document and normalizes its payload values.
func Parse(data []byte, isJSON bool) (*Document, error) {
	var doc Document
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	}
	if err := doc.normalize(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// normalize checks ids and schemas and converts YAML values (int, nested
// maps) to canonical JSON values.
func (d *Document) normalize() error {
	var errs []error
	for i, c := range d.Components {
		switch {
		case c == nil:
			errs = append(errs, fmt.Errorf("components[%d]: empty entry", i))
			continue
		case c.ID == "":
			errs = append(errs, fmt.Errorf("components[%d]: id is required", i))
		case !c.EndpointType.Valid():
			errs = append(errs, fmt.Errorf("component %s: unknown endpoint_type %q", c.ID, c.EndpointType))
		}
		if err := schema.Check(c.InputSchema); err != nil {
			errs = append(errs, fmt.Errorf("component %s: input_schema: %w", c.ID, err))
		}
		if err := schema.Check(c.OutputSchema); err != nil {
			errs = append(errs, fmt.Errorf("component %s: output_schema: %w", c.ID, err))
		}
	}

	for i, w := range d.Workflows {
		if w == nil {
			errs = append(errs, fmt.Errorf("workflows[%d]: empty entry", i))
			continue
		}
		if w.ID == "" {
			errs = append(errs, fmt.Errorf("workflows[%d]: id is required", i))
		}
		var err error
		if w.OutputMapping != nil {
			if w.OutputMapping, err = payload.NormalizeMap(w.OutputMapping); err != nil {
				errs = append(errs, fmt.Errorf("workflow %s: output_mapping: %w", w.ID, err))
			}
		}
		for j := range w.Steps {
			step := &w.Steps[j]
			if step.Config != nil {
				if step.Config, err = payload.NormalizeMap(step.Config); err != nil {
					errs = append(errs, fmt.Errorf("workflow %s step %d: config: %w", w.ID, step.StepID, err))
				}
			}
			if step.InputMapping != nil {
				if step.InputMapping, err = payload.NormalizeMap(step.InputMapping); err != nil {
					errs = append(errs, fmt.Errorf("workflow %s step %d: input_mapping: %w", w.ID, step.StepID, err))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, errors.Join(errs...))
	}
	return nil
}

func (d *Document) merge(other *Document) {
	components := make(map[string]int, len(d.Components))
	for i, c := range d.Components {
		components[c.ID] = i
	}
	for _, c := range other.Components {
		if i, ok := components[c.ID]; ok {
			d.Components[i] = c
			continue
		}
		components[c.ID] = len(d.Components)
		d.Components = append(d.Components, c)
	}

	workflows := make(map[string]int, len(d.Workflows))
	for i, w := range d.Workflows {
		workflows[w.ID] = i
	}
	for _, w := range other.Workflows {
		if i, ok := workflows[w.ID]; ok {
			d.Workflows[i] = w
			continue
		}
		workflows[w.ID] = len(d.Workflows)
		d.Workflows = append(d.Workflows, w)
	}
}

// Apply saves every component, then every workflow, into dst.
func (d *Document) Apply(ctx context.Context, dst repository.Catalog) error {
	for _, c := range d.Components {
		if err := dst.SaveComponent(ctx, c); err != nil {
			return err
		}
	}
	for _, w := range d.Workflows {
		if err := dst.SaveWorkflow(ctx, w); err != nil {
			return err
		}
	}
	return nil
}
