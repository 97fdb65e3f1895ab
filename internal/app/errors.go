package app

import "errors"

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEnqueue  = errors.New("message enqueue failed")
)

// GenerationError wraps a model/streaming failure. The wrapped cause is for
// logs; user-facing surfaces show only the safe message. The orchestrator
// never retries generation itself — a mid-stream retry without provider
// idempotency guarantees could duplicate output.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "answer generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// UserMessage is the text safe to surface to the chat caller.
func (e *GenerationError) UserMessage() string {
	return "The assistant could not generate an answer right now. Please try again."
}
