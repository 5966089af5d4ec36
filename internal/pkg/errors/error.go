package errors

import (
	"errors"
	"fmt"
)

// AppError carries a business code through the service layer to the HTTP response
type AppError struct {
	Code    int
	Message string
	Details string
	Err     error
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	switch {
	case e.Err != nil:
		return msg + ": " + e.Err.Error()
	case e.Details != "":
		return msg + ": " + e.Details
	default:
		return msg
	}
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status mapped to the error code
func (e *AppError) HTTPStatus() int {
	return GetHTTPStatus(e.Code)
}

// New creates an AppError for code with optional details
func New(code int, details ...string) *AppError {
	return &AppError{
		Code:    code,
		Message: GetMessage(code),
		Details: firstDetail(details),
	}
}

// Wrap attaches code to err. An error that is already an AppError keeps its
// code and only picks up the new details.
func Wrap(err error, code int, details ...string) *AppError {
	if err == nil {
		return nil
	}

	detail := firstDetail(details)
	var appErr *AppError
	if errors.As(err, &appErr) {
		if detail != "" {
			appErr.Details = detail
		}
		return appErr
	}

	e := New(code, detail)
	e.Err = err
	return e
}

// Is reports whether err is an AppError with code
func Is(err error, code int) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// ExtractCode returns the business code of err, ErrInternalServer for plain errors
func ExtractCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServer
}

// GetDetails returns the most specific description available for err
func GetDetails(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Details != "" {
			return appErr.Details
		}
		if appErr.Err != nil {
			return appErr.Err.Error()
		}
		return ""
	}
	return err.Error()
}

func firstDetail(details []string) string {
	if len(details) == 0 {
		return ""
	}
	return details[0]
}
