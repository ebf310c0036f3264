package service

import (
	"errors"
	"fmt"

	"github.com/Md-KamranQutub/chatify/internal/repo"
)

// Kind classifies a service failure for the transport layers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// Error is returned by every service operation that fails.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func forbidden(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

func notFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// fromRepo maps a store error: ErrNotFound becomes NotFound, anything else Internal.
func fromRepo(err error, what string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(what + " not found")
	}
	return internal("failed to access "+what, err)
}

// KindOf extracts the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal server error"
}
