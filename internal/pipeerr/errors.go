// Package pipeerr defines the error taxonomy shared across the pipeline.
// Per-document and per-source failures are values of these types so that
// callers can branch on the failure class instead of parsing messages.
package pipeerr

import (
	"errors"
	"fmt"
)

// SourceFetchError marks a failure confined to a single feed. It increments
// that source's error counter and never aborts the rest of an ingestion run.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch source %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ClassifierErrorKind distinguishes how a classifier call failed.
type ClassifierErrorKind int

const (
	// Transient covers network errors, timeouts and 5xx responses. The
	// affected documents return to a retryable state.
	Transient ClassifierErrorKind = iota
	// Quota means the provider rejected the call for billing or rate
	// reasons. It triggers key rotation at the coordinator level and is
	// not charged against the documents' retry budget by itself.
	Quota
	// Malformed means the provider answered but the payload could not be
	// interpreted. Treated like Transient but logged distinctly.
	Malformed
)

func (k ClassifierErrorKind) String() string {
	switch k {
	case Quota:
		return "quota"
	case Malformed:
		return "malformed"
	default:
		return "transient"
	}
}

// ClassifierError wraps a failed external classifier call.
type ClassifierError struct {
	Kind ClassifierErrorKind
	Err  error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier %s error: %v", e.Kind, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// IsQuota reports whether err is a quota-class classifier failure.
func IsQuota(err error) bool {
	var ce *ClassifierError
	return errors.As(err, &ce) && ce.Kind == Quota
}

// IsMalformed reports whether err is a malformed-response failure.
func IsMalformed(err error) bool {
	var ce *ClassifierError
	return errors.As(err, &ce) && ce.Kind == Malformed
}

// BudgetExceededError reports a document whose estimated size exceeds the
// batch token budget even when it is alone in a batch. Such documents are
// routed to the oversized-batch path, never dropped.
type BudgetExceededError struct {
	PostID string
	Tokens int
	Budget int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("document %s estimated at %d tokens exceeds budget %d", e.PostID, e.Tokens, e.Budget)
}
