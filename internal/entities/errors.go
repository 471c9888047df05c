package entities

import (
	"errors"
	"fmt"
)

// ErrorKind classifies operation failures
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUnauthenticated
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindInvalidArgument
	KindConflict
	KindCollaboratorUnavailable
)

var errorKindNames = map[ErrorKind]string{
	KindUnknown:                 "Unknown",
	KindUnauthenticated:         "Unauthenticated",
	KindUnauthorized:            "Unauthorized",
	KindForbidden:               "Forbidden",
	KindNotFound:                "NotFound",
	KindInvalidArgument:         "InvalidArgument",
	KindConflict:                "Conflict",
	KindCollaboratorUnavailable: "CollaboratorUnavailable",
}

// String returns the name of the error kind
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is. Matching compares kinds only.
var (
	ErrUnauthenticated         = &OperationError{Kind: KindUnauthenticated, Message: "user not authenticated"}
	ErrUnauthorized            = &OperationError{Kind: KindUnauthorized, Message: "user not authorized"}
	ErrForbidden               = &OperationError{Kind: KindForbidden, Message: "forbidden"}
	ErrNotFound                = &OperationError{Kind: KindNotFound, Message: "not found"}
	ErrInvalidArgument         = &OperationError{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrConflict                = &OperationError{Kind: KindConflict, Message: "conflict"}
	ErrCollaboratorUnavailable = &OperationError{Kind: KindCollaboratorUnavailable, Message: "collaborator unavailable"}
)

// OperationError is the structured failure returned by every operation
type OperationError struct {
	Kind    ErrorKind
	Entity  string // Entity the operation ran against (optional)
	Op      string // Operation name, e.g. "createProject" (optional)
	Message string
	Err     error // Underlying collaborator error (optional)
}

// Error implements error
func (e *OperationError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an OperationError of the same kind
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates an OperationError of the given kind
func NewError(kind ErrorKind, entity string, format string, args ...interface{}) *OperationError {
	return &OperationError{
		Kind:    kind,
		Entity:  entity,
		Message: fmt.Sprintf(format, args...),
	}
}

// Unavailable wraps a collaborator failure
func Unavailable(entity string, err error) *OperationError {
	return &OperationError{
		Kind:    KindCollaboratorUnavailable,
		Entity:  entity,
		Message: "collaborator unavailable",
		Err:     err,
	}
}

// KindOf returns the kind of err, KindUnknown if err is not an OperationError
func KindOf(err error) ErrorKind {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindUnknown
}

// WithOp returns err annotated with the operation name when it is an OperationError
func WithOp(err error, op string) error {
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		return err
	}
	c := *opErr
	c.Op = op
	return &c
}
