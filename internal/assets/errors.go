package assets

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify an *Error.
var (
	ErrValidation    = errors.New("validation error")
	ErrMissingEntity = errors.New("missing entity")
	ErrStorage       = errors.New("storage error")
	ErrPathTraversal = errors.New("path traversal")
	ErrNotFound      = errors.New("not found")
)

// Error codes returned to clients.
const (
	CodeInvalidFileType   = "invalid_file_type"
	CodeFileTooLarge      = "file_too_large"
	CodeInvalidEntity     = "invalid_entity"
	CodeMissingEntity     = "missing_entity"
	CodeMissingFilePath   = "missing_file_path"
	CodeStorageError      = "storage_error"
	CodePathTraversal     = "path_traversal"
	CodeNotFound          = "not_found"
	CodeUploadInterrupted = "upload_interrupted"
)

// Error is the error type returned by Store operations. Message is safe to
// show to clients; Err carries the underlying cause for logs only.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func validationError(code string, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func missingEntityError(message string) *Error {
	return &Error{Kind: ErrMissingEntity, Code: CodeMissingEntity, Message: message}
}

// storageError hides the cause from the message since it usually contains
// absolute filesystem paths.
func storageError(message string, err error) *Error {
	return &Error{Kind: ErrStorage, Code: CodeStorageError, Message: message, Err: err}
}

func pathTraversalError() *Error {
	return &Error{Kind: ErrPathTraversal, Code: CodePathTraversal, Message: "access denied: path is outside the storage root"}
}

func notFoundError() *Error {
	return &Error{Kind: ErrNotFound, Code: CodeNotFound, Message: "file not found"}
}
