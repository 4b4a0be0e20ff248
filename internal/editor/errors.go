package editor

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrMissingField indicates an Apply message without a required field.
	ErrMissingField = errors.New("missing field")

	// ErrEditorRejected indicates the editor refused the edits.
	ErrEditorRejected = errors.New("editor rejected edits")

	// ErrEditorUnauthorized indicates the editor refused the signature.
	ErrEditorUnauthorized = errors.New("editor refused credentials")

	// ErrEditorUnavailable indicates the editor could not be reached in time.
	ErrEditorUnavailable = errors.New("editor unavailable")

	// ErrEditorFailed covers every other editor failure.
	ErrEditorFailed = errors.New("editor failed")

	// ErrClassMismatch indicates class_bytes holding another class than
	// class_name.
	ErrClassMismatch = errors.New("class bytes do not match class name")

	// ErrUnknownMethod indicates an edit of a method the class neither
	// declares nor adds.
	ErrUnknownMethod = errors.New("edit targets unknown method")
)

// RemoteError is an Apply call that failed with a gRPC status.
type RemoteError struct {
	Class   string
	Code    codes.Code
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("editor %s on %s: %s", e.Code, e.Class, e.Message)
}

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return ErrEditorRejected
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrEditorUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrEditorUnavailable
	default:
		return ErrEditorFailed
	}
}

// GRPCStatus keeps the editor's status when the error is relayed.
func (e *RemoteError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// mapError turns a client-side RPC error into a RemoteError.
func mapError(class string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("editor call for %s: %w", class, err)
	}
	return &RemoteError{Class: class, Code: st.Code(), Message: st.Message()}
}
