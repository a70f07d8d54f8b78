package common

import "errors"

// AppError is a domain error with the code and HTTP status the API layer
// renders. Err, when set, is the underlying cause for errors.Is/As.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error chain contains an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
