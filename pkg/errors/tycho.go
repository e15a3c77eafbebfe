package errors

import (
	"errors"
	"fmt"
)

// Kind classifies failures of system lifecycle operations.
type Kind string

const (
	KindTycho   Kind = "tycho"
	KindStart   Kind = "start"
	KindDelete  Kind = "delete"
	KindModify  Kind = "modify"
	KindContext Kind = "context"
)

// TychoError is a failure carrying a message for callers and
// details (text of the underlying cause) for logs.
type TychoError struct {
	kind    Kind
	message string
	details string
	cause   error
}

var (
	ErrTycho   error = &TychoError{kind: KindTycho}
	ErrStart   error = &TychoError{kind: KindStart}
	ErrDelete  error = &TychoError{kind: KindDelete}
	ErrModify  error = &TychoError{kind: KindModify}
	ErrContext error = &TychoError{kind: KindContext}
)

func (e *TychoError) Kind() Kind {
	return e.kind
}

func (e *TychoError) Message() string {
	return e.message
}

func (e *TychoError) Details() string {
	return e.details
}

// Error tells the message followed by the details.
// Use Message to get the text for callers only.
func (e *TychoError) Error() string {
	message := e.message
	if message == "" {
		message = fmt.Sprintf("tycho: %s error", e.kind)
	}
	if e.details == "" {
		return message
	}
	return message + ": " + e.details
}

func (e *TychoError) Unwrap() error {
	return e.cause
}

// Is reports true for any *TychoError of the same kind.
//
//	errors.Is(NewStart("...", cause), ErrStart) // => true
func (e *TychoError) Is(target error) bool {
	t, ok := target.(*TychoError)
	if !ok {
		return false
	}
	return t.kind == e.kind
}

func newTycho(kind Kind, message string, cause error) *TychoError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &TychoError{kind: kind, message: message, details: details, cause: cause}
}

func NewTycho(message string, cause error) error {
	return newTycho(KindTycho, message, cause)
}

func NewStart(message string, cause error) error {
	return newTycho(KindStart, message, cause)
}

func NewDelete(message string, cause error) error {
	return newTycho(KindDelete, message, cause)
}

func NewModify(message string, cause error) error {
	return newTycho(KindModify, message, cause)
}

func NewContext(message string, cause error) error {
	return newTycho(KindContext, message, cause)
}

// AsTycho finds the outermost *TychoError in the chain of err.
func AsTycho(err error) (*TychoError, bool) {
	te := new(TychoError)
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
