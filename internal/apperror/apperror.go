package apperror

import (
	"errors"
	"net/http"
)

// Error is a user-facing failure raised at the ingestion boundary. StatusCode
// follows HTTP semantics so an upload front end can map it without a table.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Internal   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

var (
	ErrNotFound = &Error{
		Code:       "not_found",
		Message:    "The requested video was not found",
		StatusCode: http.StatusNotFound,
	}

	ErrForbidden = &Error{
		Code:       "forbidden",
		Message:    "You don't have permission to modify this video",
		StatusCode: http.StatusForbidden,
	}

	ErrFileTooLarge = &Error{
		Code:       "file_too_large",
		Message:    "The uploaded file exceeds the maximum allowed size",
		StatusCode: http.StatusRequestEntityTooLarge,
	}

	ErrInvalidFileType = &Error{
		Code:       "invalid_file_type",
		Message:    "Only video uploads are accepted",
		StatusCode: http.StatusBadRequest,
	}

	ErrUnsupportedExtension = &Error{
		Code:       "unsupported_extension",
		Message:    "Allowed extensions are .mp4, .mov, .mkv and .webm",
		StatusCode: http.StatusBadRequest,
	}

	ErrVideoPublic = &Error{
		Code:       "video_public",
		Message:    "Published videos cannot be deleted",
		StatusCode: http.StatusBadRequest,
	}

	ErrVideoBusy = &Error{
		Code:       "video_busy",
		Message:    "The video is being processed",
		StatusCode: http.StatusConflict,
	}

	ErrNotResubmittable = &Error{
		Code:       "not_resubmittable",
		Message:    "Only failed videos can be resubmitted",
		StatusCode: http.StatusConflict,
	}

	ErrInternal = &Error{
		Code:       "internal_error",
		Message:    "An unexpected error occurred. Please try again later",
		StatusCode: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &Error{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable. Please try again later",
		StatusCode: http.StatusServiceUnavailable,
	}
)

func Wrap(err error, appErr *Error) *Error {
	return &Error{
		Code:       appErr.Code,
		Message:    appErr.Message,
		StatusCode: appErr.StatusCode,
		Internal:   err,
	}
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func SafeMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Message
}

func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}
