package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"delivery-impact-service/storage"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("caller does not match the task")
	ErrInvalidState     = errors.New("transition not allowed from current status")
	ErrAlreadyAwarded   = errors.New("credits already awarded for task")
	ErrAlreadyConfirmed = errors.New("delivery already completed")
	ErrExternalWrite    = errors.New("store write failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps one of the sentinel kinds with the failing operation.
type DomainError struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return e.Op + ": " + msg
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *DomainError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, op, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// storeError classifies a storage failure. Domain errors and context
// cancellation pass through; anything the store could not do becomes ErrExternalWrite.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return &DomainError{Kind: ErrNotFound, Op: op, Err: err}
	}
	return &DomainError{Kind: ErrExternalWrite, Op: op, Err: err}
}

// StatusFor maps an error to the HTTP status reported to callers.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrAlreadyAwarded),
		errors.Is(err, ErrAlreadyConfirmed):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrExternalWrite):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
