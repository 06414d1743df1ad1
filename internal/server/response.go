package server

import (
	"encoding/json"
	"net/http"
)

// Error is the error half of the response envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"
)

var (
	ErrInternalServer = &Error{Code: ErrCodeInternalError, Message: "Internal server error", Status: http.StatusInternalServerError}
	ErrRateLimited    = &Error{Code: ErrCodeRateLimited, Message: "Too many requests", Status: http.StatusTooManyRequests}
)

func NewBadRequest(message string) *Error {
	return &Error{Code: ErrCodeBadRequest, Message: message, Status: http.StatusBadRequest}
}

func NewValidationError(message string) *Error {
	return &Error{Code: ErrCodeValidationFailed, Message: message, Status: http.StatusBadRequest}
}

func NewNotFound(message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message, Status: http.StatusNotFound}
}

// Response is the envelope of every JSON response.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

func JSONError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(Response{Error: err})
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
