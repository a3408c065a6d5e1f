// Package models defines the core data structures for LeadPipe.
//
// It includes the conversation step enum, the per-phone session record, finalized leads,
// inbound messages, and the JSON envelope used by the HTTP API.
package models

import "errors"

// Response represents an inbound message from a user, as delivered by a transport.
type Response struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	MessageID string `json:"message_id,omitempty"`
	Time      int64  `json:"time"`
}

// Validate checks that the inbound message carries a sender and a body.
func (r Response) Validate() error {
	if r.From == "" {
		return errors.New("from cannot be empty")
	}
	if r.Body == "" {
		return errors.New("body cannot be empty")
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
