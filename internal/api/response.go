package api

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-fulfillment/internal/errs"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusFor(code))
	_ = json.NewEncoder(w).Encode(APIResponse{
		Success:   false,
		Message:   errs.MessageKeyOf(err),
		Error:     err.Error(),
		ErrorCode: string(code),
		Timestamp: time.Now(),
	})
}

func httpStatusFor(code errs.Code) int {
	switch code {
	case errs.CodeUnauthenticated:
		return http.StatusUnauthorized
	case errs.CodePermissionDenied:
		return http.StatusForbidden
	case errs.CodeInvalidArgument:
		return http.StatusBadRequest
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeInvalidTransition, errs.CodeResourceExhausted:
		return http.StatusConflict
	case errs.CodeCaptureFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
