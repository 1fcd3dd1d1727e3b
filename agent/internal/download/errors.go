package download

import "fmt"

// TransportError covers network and IO failures. A retry may succeed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// IntegrityError is a size, hash or signer mismatch. The artifact is never
// kept; a retry starts from an empty file.
type IntegrityError struct {
	Check    string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s mismatch: expected %s, got %s", e.Check, e.Expected, e.Actual)
}
