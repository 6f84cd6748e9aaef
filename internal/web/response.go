// Package web holds the JSON response helpers shared by the HTTP handlers.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {error, message}. Errors that are not gRPC status
// errors, and Internal ones, never expose their text.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	st, ok := status.FromError(err)
	if !ok {
		st = status.New(codes.Internal, "internal server error")
	}

	message := st.Message()
	if st.Code() == codes.Internal || st.Code() == codes.Unknown {
		message = "internal server error"
	}

	WriteJSON(w, HTTPStatus(st.Code()), ErrorResponse{
		Error:     st.Code().String(),
		Message:   message,
		RequestID: logger.RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func HTTPStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return http.StatusConflict
	case codes.Unavailable, codes.ResourceExhausted:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
