package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a scan failure
type ErrorCode string

const (
	// InvalidInput is returned by transforms given a nil or empty buffer
	InvalidInput ErrorCode = "INVALID_INPUT"
	// Busy means a capture was requested while another one is outstanding
	Busy ErrorCode = "BUSY"
	// CaptureFailed means every capture strategy was exhausted
	CaptureFailed ErrorCode = "CAPTURE_FAILED"
	// RecognizerUnavailable means the recognition service is not initialized
	RecognizerUnavailable ErrorCode = "RECOGNIZER_UNAVAILABLE"
	// RecognitionFailed means the service reported a failure or threw
	RecognitionFailed ErrorCode = "RECOGNITION_FAILED"
	// NoTextDetected means recognition succeeded with a blank result
	NoTextDetected ErrorCode = "NO_TEXT_DETECTED"
)

// ScanError is the structured error carried through the pipeline
type ScanError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Is matches any ScanError with the same code, so callers can write
// errors.Is(err, apperrors.New(apperrors.Busy, "")).
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a ScanError without a cause
func New(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// Wrap creates a ScanError around cause
func Wrap(code ErrorCode, message string, cause error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the outermost ScanError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var se *ScanError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &ScanError{Code: code})
}

// ToMap converts the error to a map for JSON responses and event payloads
func (e *ScanError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
	}
	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}
	return result
}
