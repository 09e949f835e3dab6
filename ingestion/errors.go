package ingestion

import (
	"errors"
	"fmt"
)

// ErrUnknownRecipient means no user owns the recipient alias and no default
// recipient is configured. This is a soft outcome: delivery providers retry
// on non-2xx, and an unknown mailbox alias is not a transient condition
// worth retrying, so callers acknowledge with a 200 skip.
var ErrUnknownRecipient = errors.New("no user matches the recipient address")

// ErrPipelineTimeout marks an ingestion run that exceeded the pipeline
// deadline.
var ErrPipelineTimeout = errors.New("ingestion pipeline timed out")

// ParseError indicates no parser strategy could extract a usable email
// message from the request body.
type ParseError struct {
	cause error
}

func NewParseError(cause error) *ParseError {
	return &ParseError{cause: cause}
}

func (e *ParseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("could not parse webhook payload: %v", e.cause)
	}
	return "could not parse webhook payload"
}

func (e *ParseError) Unwrap() error {
	return e.cause
}

// AuthError indicates webhook signature verification failed. MissingParams
// distinguishes an absent signature (a malformed request, 400) from a
// present-but-invalid one (403).
type AuthError struct {
	MissingParams bool
}

func (e *AuthError) Error() string {
	if e.MissingParams {
		return "missing signature parameters"
	}
	return "invalid signature"
}

// SourceLimitError indicates the user may not register another newsletter
// source. Unlike the daily newsletter quota, this blocks an explicit user
// action (a new subscription) and is surfaced as a hard error rather than
// a silent skip.
type SourceLimitError struct {
	CurrentCount int
	MaxAllowed   int
}

func (e *SourceLimitError) Error() string {
	return fmt.Sprintf("source limit reached (%d of %d)", e.CurrentCount, e.MaxAllowed)
}
