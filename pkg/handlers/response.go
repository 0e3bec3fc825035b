package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrEncodeResponse marks a WriteJSON failure that happened before anything
// was written, so the caller can still send an error reply.
var ErrEncodeResponse = errors.New("encode response")

// ApiResponse is the envelope for every JSON reply.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// errorBody is the reply for failures that carry no data.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse writes {"error": code, "message": message}.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, errorBody{Error: errorCode, Message: message})
}

// ErrorResponseWithData writes a failed envelope whose data explains the
// error, such as the findings of an invalid tree.
func ErrorResponseWithData(w http.ResponseWriter, statusCode int, errorCode, message string, data any) error {
	return WriteJSON(w, statusCode, ApiResponse{
		Success: false,
		Error:   errorCode,
		Message: message,
		Data:    data,
	})
}

// WriteJSON encodes data with the given status. The body is encoded before
// the header is sent so an encoding failure does not leave a half-written reply.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncodeResponse, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(append(body, '\n'))
	return err
}
