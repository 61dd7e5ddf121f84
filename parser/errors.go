package parser

import "fmt"

// Reason tags why a protocol field could not be decoded.
type Reason string

const (
	ReasonEmpty            Reason = "empty"
	ReasonMissingSeparator Reason = "missing separator"
	ReasonNotNumeric       Reason = "not numeric"
	ReasonBadPosition      Reason = "bad position"
	ReasonBadJSON          Reason = "bad json"
	ReasonUnresolved       Reason = "unresolved position"
	ReasonMissingField     Reason = "missing field"
)

// FieldError describes a protocol field that failed to decode. Callers
// recover locally; it is never fatal to the stream.
type FieldError struct {
	Field  string
	Value  string
	Reason Reason
	Err    error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: %s: %v", e.Field, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErr(field, value string, reason Reason, err error) *FieldError {
	return &FieldError{Field: field, Value: value, Reason: reason, Err: err}
}
