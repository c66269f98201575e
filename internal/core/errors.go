package core

import (
	"errors"
	"fmt"

	"github.com/l1f3-sh/AI-Chat/internal/store"
)

var (
	// ErrEmptyMessage is returned when a chat request carries no message.
	ErrEmptyMessage = errors.New("message is required")
	// ErrInsufficientTokens mirrors the store sentinel so callers only need
	// to know about this package.
	ErrInsufficientTokens = store.ErrInsufficientTokens
)

// UpstreamError reports a response-generator failure. By the time the
// generator runs the debit has already committed and is final.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("response generator failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PartialFailure reports that a debit committed but the chat record could not
// be persisted. The debit is final; reconciliation is manual.
type PartialFailure struct {
	Debited int
	Err     error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("debited %d tokens but failed to persist chat record: %v", e.Debited, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }
