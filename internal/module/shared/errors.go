package shared

import (
	"errors"
	"fmt"
	"strconv"
)

// Error taxonomy for the ingestion pipeline. Every external boundary (launchpad
// API, chain RPC, content crawler, LLM) returns one of these so callers can
// decide degrade-vs-abort explicitly instead of guessing from error strings.

// NotFoundError marks an external item that no longer exists. Terminal for the
// item within a pass; never retried.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// TransientFetchError marks a network/timeout/5xx failure on an external call.
// Retryable with backoff, bounded attempts. Status carries the upstream HTTP
// status code when one was received; 0 means the request never completed.
type TransientFetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// DataShapeError marks an unexpected response shape from a third-party API.
// The affected field degrades to null/placeholder; Snippet carries a bounded
// chunk of the raw payload for the log.
type DataShapeError struct {
	Op      string
	Snippet string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("unexpected response shape in %s: %s", e.Op, e.Snippet)
}

// ValidationError marks malformed input to the normalizer (e.g. an unparseable
// numeric string). Rejects that field only.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ChainQueryError marks a failed chain RPC query. Retryable; a missing token
// account or mint is NOT a ChainQueryError, it resolves to balance 0.
type ChainQueryError struct {
	Chain  string
	Method string
	Err    error
}

func (e *ChainQueryError) Error() string {
	return fmt.Sprintf("%s chain query %s failed: %v", e.Chain, e.Method, e.Err)
}

func (e *ChainQueryError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsTransient(err error) bool {
	var tf *TransientFetchError
	var cq *ChainQueryError
	return errors.As(err, &tf) || errors.As(err, &cq)
}

// TransientStatus returns the upstream HTTP status code of a transient fetch
// failure as a string, or "" when the error carries none.
func TransientStatus(err error) string {
	var tf *TransientFetchError
	if errors.As(err, &tf) && tf.Status != 0 {
		return strconv.Itoa(tf.Status)
	}
	return ""
}

// Snippet bounds a raw payload to something loggable.
func Snippet(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
