// Package upstream carries the error type shared by every outbound client.
package upstream

import (
	"errors"
	"fmt"
)

// Error reports a failed call to an external service. Status is 0 when no
// response was received (transport failure or timeout).
type Error struct {
	Service   string
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s failed: %v", e.Service, e.Operation, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s %s failed with status %d", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Service, e.Operation, e.Status, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

// As extracts the *Error carried by err.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
