package api

import (
	"context"
	"errors"
	"net/http"

	"thumbsup/internal/service"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorCode is the machine readable part of an error response.
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidSeatCount):
		return "invalid_seat_count"
	case errors.Is(err, service.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		return "unauthenticated"
	case errors.Is(err, service.ErrForbidden):
		return "forbidden"
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, service.ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, service.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidSeatCount),
		errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// grpcError converts a service error into a status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, service.ErrInvalidSeatCount), errors.Is(err, service.ErrAlreadyCancelled):
		code = codes.FailedPrecondition
	case errors.Is(err, service.ErrEmailTaken):
		code = codes.AlreadyExists
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		code = codes.Unauthenticated
	case errors.Is(err, service.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, service.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, service.ErrStoreUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, service.UserMessage(err))
}
