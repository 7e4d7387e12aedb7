package invite

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned for unknown and soft-deleted invites.
	ErrNotFound = errors.New("invite not found")
	// ErrForbidden is returned when the caller may not change an invite.
	ErrForbidden = errors.New("not allowed to modify this invite")
	// ErrIDTaken is returned when a caller-supplied id already names an
	// invite or already holds uploaded images.
	ErrIDTaken = errors.New("invite id already in use")
)

// ValidationError lists the request fields that failed validation, keyed by
// their form names.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid request: " + strings.Join(names, ", ")
}

// UpstreamGenerationError wraps a failed generation call. Its message is
// generic; the provider detail stays in Err for logging.
type UpstreamGenerationError struct {
	Err error
}

func (e *UpstreamGenerationError) Error() string {
	return "generation failed"
}

func (e *UpstreamGenerationError) Unwrap() error {
	return e.Err
}

// DefaultRetryAfter is the back-off suggested to clients after a storage failure.
const DefaultRetryAfter = 2 * time.Second

// PersistenceError reports a failed storage operation the client may retry.
type PersistenceError struct {
	Op         string
	Err        error
	RetryAfter time.Duration
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s invite: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err, RetryAfter: DefaultRetryAfter}
}
