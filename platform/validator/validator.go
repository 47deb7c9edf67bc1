// Package validator wraps go-playground struct validation for the
// webhook request types.
package validator

import "github.com/go-playground/validator/v10"

// Validator validates inbound request structs against their tags.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator. Handlers receive one instance from the
// composition root.
func New() *Validator {
	return &Validator{
		v: validator.New(),
	}
}

// Struct validates a struct based on its validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single value against a tag expression.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers a custom validation function under tag.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}
