// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"leadgen-workers/pkg/registry"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator checks job variables against the input schemas of the activity
// registry. Schemas are compiled once.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewValidator(reg *registry.ActivityRegistry) (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	if reg == nil {
		return v, nil
	}
	for _, a := range reg.Activities {
		if len(a.InputSchema) == 0 {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(a.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile input schema for %s: %w", a.TaskType, err)
		}
		v.schemas[a.TaskType] = schema
	}
	return v, nil
}

// Validate checks a raw JSON variables document. Task types without a schema
// always pass; a nil Validator accepts everything.
func (v *Validator) Validate(taskType, variables string) *ValidationResult {
	if v == nil {
		return &ValidationResult{Valid: true}
	}
	schema, ok := v.schemas[taskType]
	if !ok {
		return &ValidationResult{Valid: true}
	}
	if strings.TrimSpace(variables) == "" {
		variables = "{}"
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(variables))
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{
			Field:   "(root)",
			Message: err.Error(),
			Code:    "INVALID_JSON",
		}}}
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return &ValidationResult{Errors: errs}
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}
