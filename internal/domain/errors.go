package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session and transport layer. Every failure leaves
// the state machine in a well-defined prior state; nothing here is fatal to
// the process.
var (
	// ErrScanFailed: the driver could not start or sustain a scan.
	ErrScanFailed = errors.New("scan failed")
	// ErrPermissionDenied: the host refused radio access before scanning.
	ErrPermissionDenied = errors.New("radio permission denied")
	// ErrConnectFailed: connect, catalog retrieval, or subscription failed.
	// The session stays disconnected and does not retry.
	ErrConnectFailed = errors.New("connect failed")
	// ErrWriteFailed: the driver rejected a command write. No sink mutation
	// happens; the caller may retry manually.
	ErrWriteFailed = errors.New("write failed")
	// ErrNotConnected: the operation requires a Ready session.
	ErrNotConnected = errors.New("no peripheral connected")
	// ErrBusy: a connect is already in flight; the session holds at most
	// one at a time.
	ErrBusy = errors.New("operation already in flight")
	// ErrPeripheralNotFound: the target id is not in the discovery list.
	ErrPeripheralNotFound = errors.New("peripheral not found")
)

// SessionError wraps a sentinel with the operation that produced it.
type SessionError struct {
	Op     string // operation name, e.g. "session.connect"
	Err    error
	Detail string
}

func (e *SessionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// NewSessionError creates a SessionError.
func NewSessionError(op string, err error, detail string) *SessionError {
	return &SessionError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error. Returns nil if err is nil,
// enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for status reporting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeScanFailed        ErrorCode = "SCAN_FAILED"
	CodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	CodeConnectFailed     ErrorCode = "CONNECT_FAILED"
	CodeWriteFailed       ErrorCode = "WRITE_FAILED"
	CodeNotConnected      ErrorCode = "NOT_CONNECTED"
	CodeBusy              ErrorCode = "BUSY"
	CodePeripheralUnknown ErrorCode = "PERIPHERAL_NOT_FOUND"
)

var errorCodeMap = map[error]ErrorCode{
	ErrScanFailed:         CodeScanFailed,
	ErrPermissionDenied:   CodePermissionDenied,
	ErrConnectFailed:      CodeConnectFailed,
	ErrWriteFailed:        CodeWriteFailed,
	ErrNotConnected:       CodeNotConnected,
	ErrBusy:               CodeBusy,
	ErrPeripheralNotFound: CodePeripheralUnknown,
}

// ErrorCodeOf returns the machine-parseable code for err, walking the error
// chain with errors.Is. Returns CodeUnknown when no sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
