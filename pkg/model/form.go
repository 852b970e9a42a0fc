package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidField = goerr.New("invalid form field")
	ErrInvalidMode  = goerr.New("invalid input mode")
)

// Field names one of the editable inputs of the generation form
type Field string

const (
	FieldUnit1  Field = "unit1"
	FieldUnit2  Field = "unit2"
	FieldPrompt Field = "prompt"
	FieldModel  Field = "model"
)

// Validate checks if the field name is known
func (f Field) Validate() error {
	switch f {
	case FieldUnit1, FieldUnit2, FieldPrompt, FieldModel:
		return nil
	default:
		return goerr.Wrap(ErrInvalidField, "unknown field", goerr.V("field", f))
	}
}

// InputMode selects which input group of the form is enabled
type InputMode string

const (
	ModeUnits  InputMode = "units"
	ModePrompt InputMode = "prompt"
)

// ParseInputMode converts user input to InputMode
func ParseInputMode(s string) (InputMode, error) {
	switch InputMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeUnits:
		return ModeUnits, nil
	case ModePrompt:
		return ModePrompt, nil
	default:
		return "", goerr.Wrap(ErrInvalidMode, "unknown input mode", goerr.V("mode", s))
	}
}

// Form holds the current values of the generation form
type Form struct {
	Unit1  string
	Unit2  string
	Prompt string
	Model  string
}

// HasUnitPair reports whether both unit fields are filled
func (f Form) HasUnitPair() bool {
	return strings.TrimSpace(f.Unit1) != "" && strings.TrimSpace(f.Unit2) != ""
}

// HasPrompt reports whether the prompt field is filled
func (f Form) HasPrompt() bool {
	return strings.TrimSpace(f.Prompt) != ""
}
