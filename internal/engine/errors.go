package engine

import (
	"errors"
	"fmt"

	"kanban/api/internal/patch"
	"kanban/api/internal/store"
)

// Category is the machine-readable failure class callers branch on.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not-found"
	CategoryConflict   Category = "conflict"
	CategoryInternal   Category = "internal"
)

// Error describes the operation that aborted a transaction. Entity and ID
// are empty when the failure is not tied to one row. Reason is set only on
// failures this package rejected itself and is safe to show to callers; Err
// may carry driver text.
type Error struct {
	Category Category
	Entity   string
	ID       string
	Op       string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	subject := e.Entity
	if e.ID != "" {
		subject += " " + e.ID
	}
	if subject == "" {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Category, e.Op, subject, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CategoryOf classifies any error returned by this package or the layers
// below it.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Category
	}
	var verr *patch.ValidationError
	switch {
	case errors.As(err, &verr):
		return CategoryValidation
	case errors.Is(err, store.ErrWriteConflict):
		return CategoryConflict
	case errors.Is(err, store.ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, store.ErrDuplicate):
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// opError attaches the failing entity and operation to err. Errors that
// already carry that context pass through untouched.
func opError(entity, id, op string, err error) error {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return err
	}
	return &Error{Category: CategoryOf(err), Entity: entity, ID: id, Op: op, Err: err}
}

func validationError(entity, id, op, reason string) error {
	return &Error{Category: CategoryValidation, Entity: entity, ID: id, Op: op, Reason: reason, Err: errors.New(reason)}
}

func notFoundError(entity, id, op string) error {
	return &Error{Category: CategoryNotFound, Entity: entity, ID: id, Op: op, Err: store.ErrNotFound}
}
