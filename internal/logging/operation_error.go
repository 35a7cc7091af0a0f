package logging

import "fmt"

// OperationError records which step failed and for which request.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

// Error renders "operation [request]: cause", dropping the brackets when
// there is no request ID.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap exposes the cause so errors.Is can match the pipeline sentinels
// through the wrapper.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError returns nil for a nil err so call sites can wrap
// unconditionally.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}
