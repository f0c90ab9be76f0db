package api

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-feedback/internal/models"
	"github.com/miradorstack/mirador-feedback/internal/repo"
	"github.com/miradorstack/mirador-feedback/internal/utils"
)

const internalErrorMessage = "internal error"

// httpError maps a service error to a status code and a client-safe message.
func httpError(err error) (int, string) {
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, repo.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, utils.PublicMessage(err, internalErrorMessage)
	}
}

// grpcError maps a service error onto a gRPC status.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		return status.Error(codes.InvalidArgument, validation.Error())
	case errors.Is(err, repo.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, repo.ErrConflict):
		return status.Error(codes.AlreadyExists, "conflict")
	default:
		return status.Error(codes.Internal, utils.PublicMessage(err, internalErrorMessage))
	}
}
