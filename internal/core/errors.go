package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeInvalidFormat    = "invalid_format"
	ErrCodeAlreadyJoined    = "already_joined"
	ErrCodeNotJoined        = "not_joined"
	ErrCodePersistFailed    = "persist_failed"
	ErrCodeIdentityMismatch = "forbidden"
	ErrCodeRateLimited      = "rate_limited"
)

// Messages sent back to the offending connection.
const (
	MsgInvalidFormat    = "Invalid message format"
	MsgAlreadyJoined    = "Already joined"
	MsgPersistFailed    = "Failed to process message"
	MsgIdentityMismatch = "User identity mismatch"
	MsgRateLimited      = "Too many messages"
)

var (
	ErrAlreadyJoined = errors.New("already joined")
	ErrConnClosed    = errors.New("connection closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// InvalidFormat is the protocol error for malformed or out-of-order frames.
func InvalidFormat() *CoreError {
	return coreError(ErrCodeInvalidFormat, MsgInvalidFormat)
}

// notJoined rejects session traffic from a connection that has not joined.
// The wire text matches InvalidFormat; the code keeps the two apart in metrics.
func notJoined() *CoreError {
	return coreError(ErrCodeNotJoined, MsgInvalidFormat)
}

// RateLimited is the protocol error for frames over the per-connection budget.
func RateLimited() *CoreError {
	return coreError(ErrCodeRateLimited, MsgRateLimited)
}
