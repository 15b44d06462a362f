// Package errors defines the typed failures produced while importing postings.
package errors

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type Code string

const (
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeAccessDenied         Code = "ACCESS_DENIED"
	CodeNotFound             Code = "NOT_FOUND"
	CodeTimeout              Code = "TIMEOUT"
	CodeHTTP                 Code = "HTTP_ERROR"
	CodeNetwork              Code = "NETWORK_ERROR"
	CodeParse                Code = "PARSE_ERROR"
	CodeInvalidRepositoryURL Code = "INVALID_REPOSITORY_URL"
	CodeReadmeNotFound       Code = "README_NOT_FOUND"
	CodeInternal             Code = "INTERNAL"
)

// ImportError is a classified failure. Recoverable errors may succeed on a
// later attempt; the fetcher retries only those.
type ImportError struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	StatusCode  int    `json:"statusCode,omitempty"`
	Err         error  `json:"-"`
	Stack       []byte `json:"-"`
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func (e *ImportError) StackTrace() []byte {
	return e.Stack
}

// New builds an ImportError and captures the caller's stack.
func New(code Code, message string, recoverable bool, err error) *ImportError {
	var stack []byte
	if err != nil {
		if stackErr, ok := err.(*goerrors.Error); ok {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &ImportError{
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
		Err:         err,
		Stack:       stack,
	}
}

func RateLimited(message string, err error) *ImportError {
	e := New(CodeRateLimited, message, true, err)
	e.StatusCode = 429
	return e
}

func AccessDenied(message string, err error) *ImportError {
	e := New(CodeAccessDenied, message, false, err)
	e.StatusCode = 403
	return e
}

func NotFound(message string, err error) *ImportError {
	e := New(CodeNotFound, message, false, err)
	e.StatusCode = 404
	return e
}

func Timeout(message string, err error) *ImportError {
	return New(CodeTimeout, message, true, err)
}

// HTTP classifies any other error status. Only 5xx responses are recoverable.
func HTTP(status int, message string) *ImportError {
	e := New(CodeHTTP, message, status >= 500, nil)
	e.StatusCode = status
	return e
}

func Network(message string, err error) *ImportError {
	return New(CodeNetwork, message, true, err)
}

func Parse(message string, err error) *ImportError {
	return New(CodeParse, message, false, err)
}

func InvalidRepositoryURL(message string, err error) *ImportError {
	return New(CodeInvalidRepositoryURL, message, false, err)
}

func ReadmeNotFound(message string, err error) *ImportError {
	return New(CodeReadmeNotFound, message, false, err)
}

func Internal(message string, err error) *ImportError {
	return New(CodeInternal, message, false, err)
}

// AsImportError returns the first ImportError in err's chain. Any other
// error is wrapped as an internal, non-recoverable failure.
func AsImportError(err error) *ImportError {
	if err == nil {
		return nil
	}
	var ie *ImportError
	if stderrors.As(err, &ie) {
		return ie
	}
	return Internal(err.Error(), err)
}

// CodeOf reports the classification of err, or "" when err is nil.
func CodeOf(err error) Code {
	if ie := AsImportError(err); ie != nil {
		return ie.Code
	}
	return ""
}

// IsRecoverable reports whether err may succeed on retry.
func IsRecoverable(err error) bool {
	var ie *ImportError
	if stderrors.As(err, &ie) {
		return ie.Recoverable
	}
	return false
}
