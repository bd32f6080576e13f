// Package apierr defines the stable error-kind registry from spec.md §7:
// each kind carries its HTTP status, whether the message is safe to
// expose to clients, and the level it should be logged at.
package apierr

import (
	"fmt"
	"net/http"

	"go.uber.org/zap/zapcore"
)

// Code is a stable, client-visible error code.
type Code string

const (
	InvalidParameter   Code = "INVALID_PARAMETER"
	InvalidSize        Code = "INVALID_SIZE"
	InvalidColor       Code = "INVALID_COLOR"
	InvalidFormat      Code = "INVALID_FORMAT"
	BatchLimitExceeded Code = "BATCH_LIMIT_EXCEEDED"
	BulkLimitExceeded  Code = "BULK_LIMIT_EXCEEDED"
	NoValidIcons       Code = "NO_VALID_ICONS"
	VariantNotAvail    Code = "VARIANT_NOT_AVAILABLE"
	IconNotFound       Code = "ICON_NOT_FOUND"
	CategoryNotFound   Code = "CATEGORY_NOT_FOUND"
	NotFound           Code = "NOT_FOUND"
	RateLimited        Code = "RATE_LIMITED"
	StorageError       Code = "STORAGE_ERROR"
	InternalError      Code = "INTERNAL_ERROR"
)

type registryEntry struct {
	Status int
	Expose bool
	Level  zapcore.Level
}

var registry = map[Code]registryEntry{
	InvalidParameter:   {Status: http.StatusBadRequest, Expose: true, Level: zapcore.InfoLevel},
	InvalidSize:        {Status: http.StatusBadRequest, Expose: true, Level: zapcore.InfoLevel},
	InvalidColor:       {Status: http.StatusBadRequest, Expose: true, Level: zapcore.InfoLevel},
	InvalidFormat:      {Status: http.StatusBadRequest, Expose: true, Level: zapcore.InfoLevel},
	BatchLimitExceeded: {Status: http.StatusBadRequest, Expose: true, Level: zapcore.InfoLevel},
	BulkLimitExceeded:  {Status: http.StatusBadRequest, Expose: true, Level: zapcore.InfoLevel},
	NoValidIcons:       {Status: http.StatusBadRequest, Expose: true, Level: zapcore.InfoLevel},
	VariantNotAvail:    {Status: http.StatusBadRequest, Expose: true, Level: zapcore.InfoLevel},
	IconNotFound:       {Status: http.StatusNotFound, Expose: true, Level: zapcore.InfoLevel},
	CategoryNotFound:   {Status: http.StatusNotFound, Expose: true, Level: zapcore.InfoLevel},
	NotFound:           {Status: http.StatusNotFound, Expose: true, Level: zapcore.InfoLevel},
	RateLimited:        {Status: http.StatusTooManyRequests, Expose: true, Level: zapcore.WarnLevel},
	StorageError:       {Status: http.StatusServiceUnavailable, Expose: true, Level: zapcore.ErrorLevel},
	InternalError:      {Status: http.StatusInternalServerError, Expose: false, Level: zapcore.ErrorLevel},
}

// Error is the internal representation of a client-facing API error.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error for code with message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error for code with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error for code, retaining cause for logging only.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetails attaches a details map (e.g. ICON_NOT_FOUND suggestions).
func (e *Error) WithDetails(d map[string]any) *Error {
	e.Details = d
	return e
}

// Status returns the HTTP status for the error's code.
func (e *Error) Status() int {
	if entry, ok := registry[e.Code]; ok {
		return entry.Status
	}
	return http.StatusInternalServerError
}

// Expose reports whether the message may be sent to the client verbatim.
func (e *Error) Expose() bool {
	if entry, ok := registry[e.Code]; ok {
		return entry.Expose
	}
	return false
}

// Level returns the zap level the error should be logged at.
func (e *Error) Level() zapcore.Level {
	if entry, ok := registry[e.Code]; ok {
		return entry.Level
	}
	return zapcore.ErrorLevel
}

// PublicMessage returns the message safe to show a client: the error's
// own message if exposable, otherwise the generic fallback from spec.md §7.
func (e *Error) PublicMessage() string {
	if e.Expose() {
		return e.Message
	}
	return "An unexpected error occurred"
}

// As attempts to convert err into an *Error, wrapping unknown errors as
// INTERNAL_ERROR so callers always have a status/code to render.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errorsAs(err, &e) {
		return e
	}
	return Wrap(InternalError, err, "internal error")
}

// errorsAs walks err's Unwrap chain looking for an *Error, the same
// search errors.As performs, without importing the errors package.
func errorsAs(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
