package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError means the source document is not ready for similarity
// search (missing centroid, zero effective chunks). Non-retryable; the
// Remediation text is surfaced to the caller.
type ValidationError struct {
	DocumentID  uuid.UUID
	Reasons     []string
	Remediation string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document %s not ready for similarity search: %v", e.DocumentID, e.Reasons)
}

// NotFoundError means an unknown document ID was requested.
type NotFoundError struct {
	DocumentID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %s not found", e.DocumentID)
}

// UpstreamServiceError wraps a vector index or chunk store failure. Reads
// are idempotent, so the orchestrator retries these with backoff before
// surfacing a generic retryable error.
type UpstreamServiceError struct {
	Service string // "vector_index" or "chunk_store"
	Op      string
	Err     error
}

func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error { return e.Err }

// AbortedError means cancellation was requested mid-pipeline. Distinct
// from an empty result set: partial results are discarded, not returned.
type AbortedError struct {
	Stage string
	Err   error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("similarity search aborted during %s: %v", e.Stage, e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }

// CandidateFailure records one candidate dropped during Stage2. Collected
// into the optional diagnostics output; never fails the whole request.
type CandidateFailure struct {
	DocumentID uuid.UUID `json:"document_id"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
}
