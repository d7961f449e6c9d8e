package llm

import "errors"

// ErrModelUnavailable is returned once bounded transport retries are
// exhausted. It is an operational fault, never a content judgment.
var ErrModelUnavailable = errors.New("model endpoint unavailable")

// ErrModelTimeout is returned when the completion request exceeded its
// deadline on every attempt.
var ErrModelTimeout = errors.New("model request timed out")
