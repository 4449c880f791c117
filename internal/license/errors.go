package license

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Store operations.
var (
	// ErrNotFound is returned by Mutate when the key has no record.
	ErrNotFound = errors.New("license: key not found")
	// ErrAlreadyExists is returned by Insert on a key collision. With
	// random 128-bit keys this is practically unreachable, but it is
	// surfaced rather than silently overwriting.
	ErrAlreadyExists = errors.New("license: key already exists")
)

// InvalidInputError reports a malformed admin-create argument. No record is
// created when one is returned.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("license: invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a failed durable write. It is fatal to the mutating
// call that triggered it: the in-memory state is rolled back and the caller
// must not report the operation as having happened.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("license: persist (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceFailure reports whether err is (or wraps) a PersistenceError.
func IsPersistenceFailure(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
