package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error with helpful suggestions
type ValidationError struct {
	Field        string      `yaml:"field"`
	Message      string      `yaml:"message"`
	Suggestion   string      `yaml:"suggestion"`
	FixCommand   string      `yaml:"fix_command,omitempty"`
	CurrentValue interface{} `yaml:"current_value,omitempty"`
	ValidValues  []string    `yaml:"valid_values,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error in field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error with suggestion
func NewValidationError(field, message, suggestion string) ValidationError {
	return ValidationError{
		Field:      field,
		Message:    message,
		Suggestion: suggestion,
	}
}

// NewValidationErrorWithFix creates a validation error with suggestion and fix command
func NewValidationErrorWithFix(field, message, suggestion, fixCommand string) ValidationError {
	return ValidationError{
		Field:      field,
		Message:    message,
		Suggestion: suggestion,
		FixCommand: fixCommand,
	}
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError `yaml:"errors"`
}

func (e ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var messages []string
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}

	return fmt.Sprintf("multiple validation errors:\n  - %s", strings.Join(messages, "\n  - "))
}

// NewValidationErrors creates a ValidationErrors from a slice of ValidationError
func NewValidationErrors(errors []ValidationError) ValidationErrors {
	return ValidationErrors{Errors: errors}
}

// Has reports whether field failed validation
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetFixSuggestions returns a formatted list of fix suggestions
func (e ValidationErrors) GetFixSuggestions() []string {
	var suggestions []string
	for _, err := range e.Errors {
		if err.Suggestion != "" {
			suggestions = append(suggestions, fmt.Sprintf("%s: %s", err.Field, err.Suggestion))
		}
		if err.FixCommand != "" {
			suggestions = append(suggestions, fmt.Sprintf("%s: try `%s`", err.Field, err.FixCommand))
		}
	}
	return suggestions
}

// ConfigError represents configuration loading/processing errors
type ConfigError struct {
	Type       string
	File       string
	Message    string
	Suggestion string
	Cause      error
}

func (e ConfigError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("config %s error in '%s': %s", e.Type, e.File, e.Message)
	}
	return fmt.Sprintf("config %s error: %s", e.Type, e.Message)
}

func (e ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error
func NewConfigError(errorType, message, suggestion string) ConfigError {
	return ConfigError{
		Type:       errorType,
		Message:    message,
		Suggestion: suggestion,
	}
}

// NewConfigFileError creates a configuration error for a specific file
func NewConfigFileError(errorType, file, message, suggestion string) ConfigError {
	return ConfigError{
		Type:       errorType,
		File:       file,
		Message:    message,
		Suggestion: suggestion,
	}
}

// WithCause adds a cause to the error
func (e ConfigError) WithCause(cause error) ConfigError {
	e.Cause = cause
	return e
}

// PermissionError is returned when the channel tree cannot be read
type PermissionError struct {
	Resource   string
	Required   []string
	Suggestion string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("insufficient permissions for %s: requires %v",
		e.Resource, e.Required)
}

// NewPermissionError creates a new permission error
func NewPermissionError(resource string, required []string, suggestion string) PermissionError {
	return PermissionError{
		Resource:   resource,
		Required:   required,
		Suggestion: suggestion,
	}
}
