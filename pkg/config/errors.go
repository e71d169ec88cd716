package config

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is through ValidationError and
// LoadError.
var (
	ErrConfigNotFound       = errors.New("configuration file not found")
	ErrInvalidYAML          = errors.New("invalid YAML syntax")
	ErrValidationFailed     = errors.New("configuration validation failed")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidValue         = errors.New("invalid field value")
)

// ValidationError locates a bad setting: the section, the instance inside
// it (a transport kind or provider, may be empty) and the field.
type ValidationError struct {
	Component string
	ID        string
	Field     string
	Err       error
}

func (e *ValidationError) Error() string {
	where := e.Component
	if e.ID != "" {
		where += " '" + e.ID + "'"
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", where, e.Err)
	}
	return fmt.Sprintf("%s: field '%s': %v", where, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError returns a ValidationError for component/id/field.
func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{Component: component, ID: id, Field: field, Err: err}
}

// LoadError is a failure to read or parse a configuration file.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError returns a LoadError for file.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
