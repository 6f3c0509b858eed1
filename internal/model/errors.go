package model

import (
	"context"
	"errors"
	"fmt"
)

// Error codes surfaced in the uniform error object.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeEmbedUnavailable   = "EMBED_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
	CodeInternal           = "INTERNAL"
)

// NotFoundError indicates the record does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure on one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ForbiddenError indicates the caller's role does not permit the endpoint.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return "forbidden: " + e.Reason
}

// BackendUnavailableError indicates a backing store kept failing after the
// retry envelope was exhausted.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// EmbedUnavailableError indicates the embedder kept failing after the retry
// envelope was exhausted.
type EmbedUnavailableError struct {
	Err error
}

func (e *EmbedUnavailableError) Error() string {
	return fmt.Sprintf("embedder unavailable: %v", e.Err)
}

func (e *EmbedUnavailableError) Unwrap() error { return e.Err }

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	var (
		validation *ValidationError
		forbidden  *ForbiddenError
		notFound   *NotFoundError
		backend    *BackendUnavailableError
		embed      *EmbedUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		return CodeValidation
	case errors.As(err, &forbidden):
		return CodeForbidden
	case errors.As(err, &notFound):
		return CodeNotFound
	case errors.As(err, &embed):
		return CodeEmbedUnavailable
	case errors.As(err, &backend):
		return CodeBackendUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

// ErrorBody builds the uniform error object for a response.
func ErrorBody(code, message string, detail map[string]any) map[string]any {
	inner := map[string]any{
		"code":    code,
		"message": message,
	}
	if detail != nil {
		inner["detail"] = detail
	}
	return map[string]any{"error": inner}
}
