// Package validation checks query parameters for the explorer API.
package validation

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxStringLength is the maximum length for string parameters
const MaxStringLength = 512

// decimalRegex validates unsigned decimal ids
var decimalRegex = regexp.MustCompile(`^[0-9]+$`)

// IsDecimal reports whether s is an unsigned decimal number.
func IsDecimal(s string) bool {
	return decimalRegex.MatchString(s)
}

// SanitizeString trims whitespace, drops null bytes and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Integer parses an optional integer field into *out. An empty value
// leaves *out nil.
func Integer(field, value string, out **int) func() *ValidationError {
	return func() *ValidationError {
		value = strings.TrimSpace(value)
		if value == "" {
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return &ValidationError{Field: field, Message: "must be an integer"}
		}
		*out = &n
		return nil
	}
}

// IntRange parses an optional integer field that must lie in [min, max].
func IntRange(field, value string, min, max int, out **int) func() *ValidationError {
	parse := Integer(field, value, out)
	return func() *ValidationError {
		if err := parse(); err != nil {
			return err
		}
		if *out != nil && (**out < min || **out > max) {
			*out = nil
			return &ValidationError{Field: field, Message: "must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)}
		}
		return nil
	}
}
