// Package errors contains the error helpers used throughout kdeploy. Errors
// are wrapped with short lowercase context strings so that the final message
// reads like a path through the code, e.g. "deploy: resolve: list remote: EOF".
package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return goerrors.New(msg)
}

// Is is a passthrough to the standard library so callers don't need to
// import both packages.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

// As is a passthrough to the standard library.
func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}

// contextError annotates an error with where it occurred.
type contextError struct {
	err     error
	context string
}

// WithContext adds context to err. It returns nil if err is nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{err: err, context: context}
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// RootCause returns the innermost error that was wrapped by WithContext.
// Errors wrapped with other mechanisms are returned as is.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// FriendlyError is an error whose message is meant to be shown directly to
// the user, without any of the context accumulated while unwinding.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError with a formatted message.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{msg: fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the user-facing message.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// Friendly is implemented by errors that carry a user-facing message.
type Friendly interface {
	FriendlyMessage() string
}

// GetFriendlyMessage returns the user-facing message of the deepest friendly
// error in err's chain, if any.
func GetFriendlyMessage(err error) (string, bool) {
	var friendly Friendly
	if goerrors.As(err, &friendly) {
		return friendly.FriendlyMessage(), true
	}
	return "", false
}
