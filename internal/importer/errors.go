package importer

import "fmt"

// ValidationError rejects an upload before any processing: wrong type,
// oversize, missing or duplicate document, unreadable archive.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid upload: %s: %v", e.Reason, e.Err)
	}
	return "invalid upload: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IntegrityError is an archive entry whose name would escape the scratch
// directory.
type IntegrityError struct {
	Entry  string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("unsafe archive entry %q: %s", e.Entry, e.Reason)
}

// PersistenceError wraps a failed save. Nothing was written.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "save import: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }
