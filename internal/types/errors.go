package types

import (
	"errors"
	"strings"
)

// Sentinel errors for verdict operations.
var (
	// ErrRequiredField indicates a definition lacks a field its shape requires.
	ErrRequiredField = errors.New("required field missing")

	// ErrInvalidField indicates a field has a value outside its allowed set.
	ErrInvalidField = errors.New("invalid field value")

	// ErrDuplicateRuleID indicates two definitions claim the same rule id.
	ErrDuplicateRuleID = errors.New("duplicate rule id")

	// ErrInvalidOperator indicates an operator unknown or not allowed at this position.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrInvalidPattern indicates a regex operator value that does not compile.
	ErrInvalidPattern = errors.New("invalid regex pattern")

	// ErrUnknownTransform indicates a transform name that is not registered.
	ErrUnknownTransform = errors.New("unknown transform")

	// ErrConditionTooDeep indicates composite conditions nested beyond MaxConditionDepth.
	ErrConditionTooDeep = errors.New("condition nesting exceeds maximum depth")

	// ErrPathTooDeep indicates a path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("path exceeds maximum depth")

	// ErrMalformedPath indicates a path expression that cannot be parsed.
	ErrMalformedPath = errors.New("malformed path")

	// ErrUnsupportedValue indicates a Go value outside the supported value kinds.
	ErrUnsupportedValue = errors.New("unsupported value type")

	// ErrIncompatibleTypes indicates an operator applied to operands it cannot compare.
	ErrIncompatibleTypes = errors.New("incompatible operand types")

	// ErrUnknownRule indicates a RULE outcome referencing a rule id absent from the registry.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrGraphTooDeep indicates rule-graph recursion beyond the configured depth.
	ErrGraphTooDeep = errors.New("rule graph recursion exceeds maximum depth")
)

// ValidationError reports a definition that cannot be hydrated, naming the offending field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid builds a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// PrefixField qualifies the field path of a ValidationError with prefix.
// Errors that are not ValidationErrors are wrapped into one located at prefix.
func PrefixField(prefix string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		field := prefix
		if ve.Field != "" {
			if strings.HasPrefix(ve.Field, "[") {
				field = prefix + ve.Field
			} else {
				field = prefix + "." + ve.Field
			}
		}
		return &ValidationError{Field: field, Err: ve.Err}
	}
	return &ValidationError{Field: prefix, Err: err}
}
