package utils

import (
	"encoding/json"
	"net/http"
	"time"
)

// Stable machine-readable error codes returned next to the message.
const (
	CodeMissingRequiredField    = "MISSING_REQUIRED_FIELD"
	CodeInvalidEmailFormat      = "INVALID_EMAIL_FORMAT"
	CodeInvalidSelection        = "INVALID_SELECTION"
	CodeSlotUnavailable         = "SLOT_UNAVAILABLE"
	CodePricingValidationFailed = "PRICING_VALIDATION_FAILED"
	CodeInvalidTransition       = "INVALID_STATUS_TRANSITION"
	CodeCapacityExceeded        = "CAPACITY_EXCEEDED"
	CodeNotFound                = "NOT_FOUND"
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeNotPayable              = "BOOKING_NOT_PAYABLE"
	CodeConflict                = "CONFLICT"
	CodePaymentUnavailable      = "PAYMENT_UNAVAILABLE"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeInternal                = "INTERNAL_ERROR"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(code, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Error:     error,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse(code, message))
}
