package uvc

import "fmt"

// Error represents a domain-specific error
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeNoTransport      = "NO_TRANSPORT"
	ErrCodeInvalidIndex     = "INVALID_STREAM_INDEX"
	ErrCodeNoSource         = "NO_FRAME_SOURCE"
	ErrCodeNoBuffer         = "NO_TRANSFER_BUFFER"
	ErrCodeZeroCapacity     = "ZERO_BUFFER_CAPACITY"
	ErrCodeInvalidFrameRate = "INVALID_FRAME_RATE"
	ErrCodeEmptyCatalog     = "EMPTY_FRAME_CATALOG"
	ErrCodeBadFrameDesc     = "INVALID_FRAME_DESC"
	ErrCodeAlreadyRunning   = "DEVICE_RUNNING"
	ErrCodeNotConfigured    = "DEVICE_NOT_CONFIGURED"
	ErrCodeFrameIndex       = "FRAME_INDEX_OUT_OF_RANGE"
	ErrCodeStartFailed      = "SOURCE_START_FAILED"
)

// NewError creates a new device error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
