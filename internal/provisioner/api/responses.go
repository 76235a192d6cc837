package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/AvinFlower/shadow-link/internal/shared/errors"
	"github.com/AvinFlower/shadow-link/pkg/api"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess[T any](w http.ResponseWriter, data T) error {
	return WriteJSON(w, http.StatusOK, api.Response[T]{
		Success: true,
		Data:    data,
	})
}

// WriteErrorResponse logs the error and translates DomainErrors into the
// matching HTTP response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := GetLogger(ctx)
	requestID := GetRequestID(ctx)

	logger.ErrorCtx(ctx, "API request failed", err)

	statusCode := http.StatusInternalServerError
	errorCode := apperrors.ErrCodeInternal
	message := "An internal server error occurred"

	var domainErr apperrors.DomainError
	if de, ok := err.(apperrors.DomainError); ok {
		domainErr = de
	}
	if domainErr != nil {
		errorCode = domainErr.Code()
		statusCode, message = mapErrorCodeToHTTP(domainErr)
	}

	_ = WriteJSON(w, statusCode, api.Response[any]{
		Success: false,
		Error: &api.ErrorInfo{
			Code:      errorCode,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// mapErrorCodeToHTTP maps domain error codes to HTTP status codes and
// user-facing messages.
func mapErrorCodeToHTTP(err apperrors.DomainError) (int, string) {
	errMsg := err.Error()

	switch err.Code() {
	case apperrors.ErrCodeInvalidArgument:
		return http.StatusBadRequest, "Validation failed: " + errMsg

	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound, "Resource not found: " + errMsg

	case apperrors.ErrCodeNoCapacity:
		return http.StatusConflict, "No server capacity available: " + errMsg

	case apperrors.ErrCodeRemoteUnreachable:
		return http.StatusBadGateway, "Remote server unreachable: " + errMsg

	default:
		return http.StatusInternalServerError, "An internal server error occurred"
	}
}
