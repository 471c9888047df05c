package handlers

import (
	"errors"

	"github.com/eddy-backend/eddy/internal/entities"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var kindCodes = map[entities.ErrorKind]codes.Code{
	entities.KindUnauthenticated:         codes.Unauthenticated,
	entities.KindUnauthorized:            codes.PermissionDenied,
	entities.KindForbidden:               codes.PermissionDenied,
	entities.KindNotFound:                codes.NotFound,
	entities.KindInvalidArgument:         codes.InvalidArgument,
	entities.KindConflict:                codes.AlreadyExists,
	entities.KindCollaboratorUnavailable: codes.Unavailable,
}

// CodeOf returns the gRPC status code for an operation error kind
func CodeOf(kind entities.ErrorKind) codes.Code {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return codes.Internal
}

// toStatus converts an operation failure to a gRPC status error.
// Collaborator details are not sent to the client.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	var opErr *entities.OperationError
	if !errors.As(err, &opErr) {
		if _, ok := status.FromError(err); ok {
			return err
		}
		return status.Error(codes.Internal, "internal error")
	}

	msg := opErr.Kind.String()
	if opErr.Op != "" {
		msg = opErr.Op + ": " + msg
	}
	if opErr.Message != "" {
		msg += ": " + opErr.Message
	}
	return status.Error(CodeOf(opErr.Kind), msg)
}
