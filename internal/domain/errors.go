package domain

import "errors"

var (
	ErrNoSelection = errors.New("no selection")
	ErrNoMedia     = errors.New("no video media found")
	ErrInternal    = errors.New("internal error")
)

// FailureKind classifies why a request to an indexer produced nothing.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureCancelled
	FailureTimeout
	// FailureUnavailable covers refused connections, resets and 5xx/429 answers.
	FailureUnavailable
	// FailureRejected is an answer that will not change on repeat: 4xx or a torznab <error>.
	FailureRejected
	FailurePayload
)

var failureKindNames = [...]string{
	FailureUnknown:     "error",
	FailureCancelled:   "cancelled",
	FailureTimeout:     "timeout",
	FailureUnavailable: "unavailable",
	FailureRejected:    "rejected",
	FailurePayload:     "payload",
}

func (k FailureKind) String() string {
	if k < 0 || int(k) >= len(failureKindNames) {
		return failureKindNames[FailureUnknown]
	}
	return failureKindNames[k]
}

// Retryable reports whether repeating the same request may succeed.
func (k FailureKind) Retryable() bool {
	return k == FailureTimeout || k == FailureUnavailable
}

// IndexerError is a failure the aggregator reported in a recognisable way.
type IndexerError struct {
	Kind FailureKind
	// Code is the HTTP status or the torznab error code, zero when neither applies.
	Code    int
	Message string
	Err     error
}

func (e *IndexerError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *IndexerError) Unwrap() error {
	return e.Err
}
