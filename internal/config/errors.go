// ABOUTME: Aggregated configuration validation errors
// ABOUTME: Collects one message per invalid field
package config

import (
	"fmt"
	"strings"
)

// FieldError describes one invalid field
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every field that failed validation
type ValidationError struct {
	Errors []FieldError
}

// Add appends a field error
func (v *ValidationError) Add(field, message string) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message})
}

// Has reports whether field failed validation
func (v *ValidationError) Has(field string) bool {
	for _, e := range v.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

func (v *ValidationError) Error() string {
	parts := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		parts[i] = fmt.Sprintf("%s %s", e.Field, e.Message)
	}
	return "invalid config: " + strings.Join(parts, "; ")
}
