package grpcsvc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// codeFor отображает ошибку приложения в gRPC-код и сообщение клиенту.
func codeFor(err error) (codes.Code, string) {
	if orderErr, ok := domain.AsOrderError(err); ok {
		return codes.InvalidArgument, orderErr.Message
	}
	var validation *domain.ValidationError
	switch {
	case domain.IsNotFound(err):
		return codes.NotFound, err.Error()
	case errors.As(err, &validation):
		return codes.InvalidArgument, err.Error()
	case domain.IsConflict(err):
		return codes.AlreadyExists, err.Error()
	}
	return codes.Internal, "internal error"
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code, message := codeFor(err)
	return status.Error(code, message)
}
