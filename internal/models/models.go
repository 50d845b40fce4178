// Package models defines the core data structures for Turnero.
//
// It includes inbound/outbound message types and shared API response helpers
// used across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for inbound message handling.
const (
	// MaxMessageBodyLength defines the maximum accepted inbound body length.
	MaxMessageBodyLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessageID       = errors.New("message id cannot be empty")
	ErrEmptySenderPhone     = errors.New("sender phone cannot be empty")
	ErrEmptyReceivingNumber = errors.New("receiving number cannot be empty")
	ErrMessageBodyTooLong   = errors.New("message body exceeds maximum length")
)

// InboundMessage represents one message received from the transport.
// MessageID is transport-assigned and is the deduplication key: each id is
// processed at most once.
type InboundMessage struct {
	MessageID       string    `json:"message_id"`
	SenderPhone     string    `json:"sender_phone"`
	ReceivingNumber string    `json:"receiving_number"`
	Body            string    `json:"body"`
	Timestamp       time.Time `json:"timestamp"`
}

// Validate performs validation on an inbound message before routing.
func (m *InboundMessage) Validate() error {
	if m.MessageID == "" {
		return ErrEmptyMessageID
	}
	if m.SenderPhone == "" {
		return ErrEmptySenderPhone
	}
	if m.ReceivingNumber == "" {
		return ErrEmptyReceivingNumber
	}
	if len(m.Body) > MaxMessageBodyLength {
		return ErrMessageBodyTooLong
	}
	return nil
}

// OutboundMessage represents a reply handed to the transport for delivery.
// Delivery retries are the transport's responsibility, not the core's.
type OutboundMessage struct {
	RecipientPhone string `json:"recipient_phone"`
	Body           string `json:"body"`
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
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
