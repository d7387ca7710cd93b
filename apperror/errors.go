// Package apperror defines the error taxonomy that crosses the authentication flow boundary.
//
// Flows return one of the sentinels below, a *ValidationError, or a *FatalError. Lower-level
// errors (store conflicts, chain walk failures, token collisions) are mapped before they leave
// a flow, so callers never learn why a token was rejected.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("username or password is incorrect")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotFound           = errors.New("not found")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// FatalError marks storage and entropy failures. They are not retried.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func Fatal(op string, err error) error {
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindInvalidToken       ErrorKind = "invalid_token"
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindFatal              ErrorKind = "fatal"
)

// Kind classifies err. Anything unrecognised is treated as fatal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case IsValidation(err):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindFatal
	}
}
