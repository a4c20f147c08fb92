package domain

import (
	"errors"
	"fmt"
)

// DomainError is an error with a stable code.
type DomainError struct {
	Code    string // e.g. "EKV-KEY-4040"
	Message string // human-readable message, also used in client replies
	Details string // optional additional details
	Cause   error  // underlying error, if any
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support by comparing codes.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Reply renders the error as the text of a protocol error reply,
// without the leading '-' and trailing CRLF.
func (e *DomainError) Reply() string {
	return "ERR " + e.Message
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ReplyText renders any error as protocol error text. Non-domain errors
// are reported with their message.
func ReplyText(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Reply()
	}
	return "ERR " + err.Error()
}

// ============================================================================
// Protocol Errors (PROTO)
// ============================================================================

var (
	// ErrProtocol indicates a malformed request frame.
	ErrProtocol = NewDomainError("EKV-PROTO-4000", "protocol error")

	// ErrQueryTooLarge indicates a header line exceeded the buffering limit.
	ErrQueryTooLarge = NewDomainError("EKV-PROTO-4130", "query header too large")

	// ErrInvalidBulkCount indicates a bulk length above the payload limit.
	ErrInvalidBulkCount = NewDomainError("EKV-PROTO-4001", "invalid bulk write count")
)

// ============================================================================
// I/O Errors (IO)
// ============================================================================

var (
	// ErrIO indicates a socket read or write failure.
	ErrIO = NewDomainError("EKV-IO-5000", "i/o error")
)

// ============================================================================
// Command Errors (CMD)
// ============================================================================

var (
	// ErrUnknownCommand indicates the command name is not registered.
	ErrUnknownCommand = NewDomainError("EKV-CMD-4040", "unknown command")

	// ErrWrongArity indicates the argument count does not match the command.
	ErrWrongArity = NewDomainError("EKV-CMD-4001", "wrong number of arguments")

	// ErrSyntax indicates an argument could not be parsed.
	ErrSyntax = NewDomainError("EKV-CMD-4002", "syntax error")

	// ErrNotInteger indicates a value is not an integer or out of range.
	ErrNotInteger = NewDomainError("EKV-CMD-4003", "value is not an integer or out of range")
)

// ============================================================================
// Keyspace Errors (KEY, DB)
// ============================================================================

var (
	// ErrKeyExists indicates the key is already present.
	ErrKeyExists = NewDomainError("EKV-KEY-4090", "key exists")

	// ErrNoSuchKey indicates the key is absent.
	ErrNoSuchKey = NewDomainError("EKV-KEY-4040", "no such key")

	// ErrSameKey indicates source and destination keys are identical.
	ErrSameKey = NewDomainError("EKV-KEY-4000", "source and destination objects are the same")

	// ErrDBIndex indicates a database index out of range.
	ErrDBIndex = NewDomainError("EKV-DB-4000", "invalid DB index")
)

// ============================================================================
// Resource Errors (MEM, CLIENT)
// ============================================================================

var (
	// ErrBufferLimit indicates a client buffer reached its capacity limit.
	ErrBufferLimit = NewDomainError("EKV-MEM-5070", "buffer limit exceeded")

	// ErrMaxClients indicates the connection limit was reached.
	ErrMaxClients = NewDomainError("EKV-CLIENT-5030", "max number of clients reached")
)

// ============================================================================
// Persistence Errors (SAVE)
// ============================================================================

var (
	// ErrSave indicates a snapshot could not be written or read.
	ErrSave = NewDomainError("EKV-SAVE-5000", "persistence failure")

	// ErrSaveInProgress indicates a background save is already running.
	ErrSaveInProgress = NewDomainError("EKV-SAVE-4090", "background save already in progress")

	// ErrSnapshotCorrupt indicates a snapshot failed integrity checks.
	ErrSnapshotCorrupt = NewDomainError("EKV-SAVE-4220", "snapshot corrupt")

	// ErrPersistenceDisabled indicates no persister is configured.
	ErrPersistenceDisabled = NewDomainError("EKV-SAVE-4000", "persistence is disabled")

	// ErrShutdownSave indicates the final save before shutdown failed.
	ErrShutdownSave = NewDomainError("EKV-SAVE-5001", "can't quit, problems saving the DB")
)
