package rag

import "errors"

// Pipeline errors. Callers classify failures with errors.Is; implementations
// wrap these sentinels with operation context using %w.
var (
	// ErrValidation indicates missing or malformed required input
	// (userId/message, or neither name nor url on delete). Not retried.
	ErrValidation = errors.New("validation error")

	// ErrTimeout indicates an individual embedding call exceeded its deadline.
	// It is distinct from provider-reported failures.
	ErrTimeout = errors.New("timeout")

	// ErrProvider indicates the embedding, vector-store, or reranking
	// collaborator returned a failure.
	ErrProvider = errors.New("provider error")

	// ErrNotImplemented indicates the selected vector store has no backing
	// path for the requested operation. It must never be treated as an empty
	// result.
	ErrNotImplemented = errors.New("not implemented")
)
