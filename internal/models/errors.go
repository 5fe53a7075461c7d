package models

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindProcessing
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindProcessing:
		return "processing"
	case KindStore:
		return "store"
	}
	return "unknown"
}

// Error is the tagged error returned by the store, the generator and the
// attachment service. Message is safe to show to clients; Err is not.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
	Details []FileError
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(op, msg string) error {
	return &Error{Op: op, Kind: KindValidation, Message: msg}
}

func NotFound(op, msg string) error {
	return &Error{Op: op, Kind: KindNotFound, Message: msg}
}

func Processing(op string, err error) error {
	return &Error{Op: op, Kind: KindProcessing, Message: "failed to process image", Err: err}
}

func StoreFailure(op string, err error) error {
	return &Error{Op: op, Kind: KindStore, Message: "database unavailable", Err: err}
}

// KindOf returns the kind of the outermost tagged error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MessageOf returns the client-facing message of a tagged error, or the
// error text for anything else.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
