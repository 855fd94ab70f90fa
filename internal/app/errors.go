package app

import (
	"errors"
	"fmt"
	"net/http"

	"kanban/api/internal/engine"
	"kanban/api/internal/patch"
	"kanban/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	errForbidden    = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errBoardMissing = domainError(http.StatusNotFound, "NOT_FOUND", "Board not found", nil)
)

// engineError converts an engine or patch failure into the response the
// caller sees. Internal failures keep their cause out of the message.
func engineError(err error) error {
	var verr *patch.ValidationError
	if errors.As(err, &verr) {
		return domainError(http.StatusBadRequest, "VALIDATION_FAILED", "Invalid patch", map[string]any{"errors": verr.Errors})
	}

	details := map[string]any{}
	var engineErr *engine.Error
	if errors.As(err, &engineErr) {
		if engineErr.Entity != "" {
			details["entity"] = engineErr.Entity
		}
		if engineErr.ID != "" {
			details["id"] = engineErr.ID
		}
		if engineErr.Op != "" {
			details["op"] = engineErr.Op
		}
	}

	switch engine.CategoryOf(err) {
	case engine.CategoryValidation:
		return domainError(http.StatusBadRequest, "VALIDATION_FAILED", validationMessage(err, engineErr), details)
	case engine.CategoryNotFound:
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", details)
	case engine.CategoryConflict:
		return domainError(http.StatusConflict, "WRITE_CONFLICT", "The board changed concurrently; try again", details)
	default:
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", details)
	}
}

// validationMessage never echoes store text: duplicate keys surfaced by the
// database carry constraint names.
func validationMessage(err error, engineErr *engine.Error) string {
	switch {
	case engineErr != nil && engineErr.Reason != "":
		return engineErr.Reason
	case errors.Is(err, store.ErrDuplicate):
		subject := "record"
		if engineErr != nil && engineErr.Entity != "" {
			subject = engineErr.Entity
			if engineErr.ID != "" {
				subject += " " + engineErr.ID
			}
		}
		return subject + " already exists"
	default:
		return "Invalid request"
	}
}
