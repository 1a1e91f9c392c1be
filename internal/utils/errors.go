// Package utils holds small helpers shared across the application.
package utils

import "fmt"

// GlenError is the application error type. Package sentinels stay comparable
// with errors.Is; WithDetails attaches context without breaking that chain.
type GlenError struct {
	Msg     string
	Details string
	wrapped *GlenError
}

func NewGlenError(msg string) *GlenError {
	return &GlenError{Msg: msg}
}

func (e *GlenError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Msg, e.Details)
	}
	return e.Msg
}

// WithDetails returns a copy carrying extra context. The copy unwraps to the
// original sentinel.
func (e *GlenError) WithDetails(details string) *GlenError {
	return &GlenError{Msg: e.Msg, Details: details, wrapped: e}
}

func (e *GlenError) Unwrap() error {
	if e.wrapped == nil {
		return nil
	}
	return e.wrapped
}

var (
	ProfileNotFound = NewGlenError("profile not found")
	InvalidPassword = NewGlenError("invalid password")
)
