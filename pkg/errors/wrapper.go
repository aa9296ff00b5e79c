package errors

import "fmt"

// Wrap wraps an error with an error type and message, preserving the cause for
// errors.Is / errors.As chains
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:      errType,
		Code:      string(errType),
		Message:   message,
		Err:       err,
		Retryable: errType == ErrorTypeExternal || errType == ErrorTypeTimeout,
	}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// WrapExternal wraps a store/provider failure as an external dependency error
func WrapExternal(err error, message string) *AppError {
	return Wrap(err, ErrorTypeExternal, message)
}

// WrapInternal wraps an unexpected failure as an internal error
func WrapInternal(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message)
}
